package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

const (
	maxPathBonus      = 9
	defaultLimit      = 50
	regenerateWorkers = 4
)

var categoryWeight = map[kinship.Category]int{
	kinship.CategoryDirect:   4,
	kinship.CategoryMarriage: 3,
	kinship.CategoryInLaw:    2,
	kinship.CategoryExtended: 1,
}

// SuggestionConfig tunes suggestion generation.
type SuggestionConfig struct {
	// Limit caps stored suggestions per owner. Zero means the default.
	Limit int
	// MinConfidence is the lowest guesser confidence that may label a suggestion.
	MinConfidence float64
}

// SuggestionService generates suggestions and resolves them into requests.
type SuggestionService struct {
	db        ports.RelationalDB
	store     *EdgeStore
	validator *Validator
	requests  *RequestService
	guesser   ports.RelationshipGuesser
	events    ports.EventPublisher
	cfg       SuggestionConfig
	log       *logrus.Entry
}

// SuggestionServiceOption configures a SuggestionService.
type SuggestionServiceOption func(*SuggestionService)

// WithGuesser sets the fallback consulted when no structural path yields a code.
func WithGuesser(g ports.RelationshipGuesser) SuggestionServiceOption {
	return func(s *SuggestionService) { s.guesser = g }
}

// WithSuggestionEvents publishes SuggestionCreated events.
func WithSuggestionEvents(p ports.EventPublisher) SuggestionServiceOption {
	return func(s *SuggestionService) { s.events = p }
}

// NewSuggestionService creates a new SuggestionService.
func NewSuggestionService(
	db ports.RelationalDB,
	store *EdgeStore,
	validator *Validator,
	requests *RequestService,
	cfg SuggestionConfig,
	log *logrus.Entry,
	opts ...SuggestionServiceOption,
) *SuggestionService {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &SuggestionService{
		db:        db,
		store:     store,
		validator: validator,
		requests:  requests,
		cfg:       cfg,
		log:       log.WithField("component", "suggestions"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// path is one two-hop route from the owner to a candidate.
type path struct {
	via   *entities.Person
	first entities.RelationType
	then  entities.RelationType
	role  kinship.Role
}

// Generate scans the two-hop neighborhood of a person and replaces their pending
// suggestions with the ranked result.
func (s *SuggestionService) Generate(ctx context.Context, ownerID string) ([]entities.Suggestion, error) {
	owner, err := s.store.Person(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	excluded, err := s.excluded(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	direct, err := s.store.EdgesOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	paths := make(map[string][]path)
	for _, e1 := range direct {
		if !e1.IsAccepted() {
			continue
		}
		via, err := s.store.Person(ctx, e1.ObjectID)
		if err != nil {
			if errors.Is(err, entities.ErrPersonNotFound) {
				continue
			}
			return nil, err
		}
		second, err := s.store.EdgesOf(ctx, e1.ObjectID)
		if err != nil {
			return nil, err
		}
		for _, e2 := range second {
			c := e2.ObjectID
			if c == ownerID || excluded[c] || !e2.IsAccepted() {
				continue
			}
			role, _ := kinship.Compose(e1.Type, e2.Type)
			paths[c] = append(paths[c], path{via: via, first: e1.Type, then: e2.Type, role: role})
		}
	}

	previous, err := s.db.FindSuggestionsByOwner(ctx, ownerID, entities.SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("loading previous suggestions: %w", err)
	}
	wasPending := make(map[string]bool, len(previous))
	for _, p := range previous {
		wasPending[p.CandidateID] = true
	}

	now := timeNow()
	suggestions := make([]entities.Suggestion, 0, len(paths))
	for candidateID, ps := range paths {
		candidate, err := s.store.Person(ctx, candidateID)
		if err != nil {
			if errors.Is(err, entities.ErrPersonNotFound) {
				continue
			}
			return nil, err
		}
		sug := s.rank(owner, candidate, ps)
		if !sug.HasType() {
			s.consultGuesser(ctx, owner, candidate, &sug)
		}
		sug.ID = uuid.New().String()
		sug.OwnerID = ownerID
		sug.CandidateID = candidateID
		sug.Status = entities.SuggestionPending
		sug.CreatedAt = now
		suggestions = append(suggestions, sug)
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].CandidateID < suggestions[j].CandidateID
	})
	if len(suggestions) > s.cfg.Limit {
		suggestions = suggestions[:s.cfg.Limit]
	}

	if err := s.db.ReplacePendingSuggestions(ctx, ownerID, suggestions); err != nil {
		return nil, fmt.Errorf("saving suggestions: %w", err)
	}

	for _, sug := range suggestions {
		metrics.suggestionsTotal.WithLabelValues(fmt.Sprint(sug.HasType())).Inc()
		if !wasPending[sug.CandidateID] {
			s.publish(ctx, entities.SuggestionCreated(ownerID, sug.CandidateID, now))
		}
	}

	s.log.WithFields(logrus.Fields{"owner": ownerID, "count": len(suggestions)}).Debug("Suggestions generated")
	return suggestions, nil
}

// RegenerateFor runs Generate for several people concurrently.
func (s *SuggestionService) RegenerateFor(ctx context.Context, personIDs ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(regenerateWorkers)
	seen := make(map[string]bool, len(personIDs))
	for _, id := range personIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			if _, err := s.Generate(ctx, id); err != nil {
				return fmt.Errorf("regenerating suggestions for %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// List returns a person's suggestions, best first. An empty status lists all.
func (s *SuggestionService) List(ctx context.Context, ownerID string, status entities.SuggestionStatus) ([]entities.Suggestion, error) {
	sugs, err := s.db.FindSuggestionsByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}
	return sugs, nil
}

// Accept turns a suggestion into a relationship request from its owner. chosen
// overrides the stored code and is required when the suggestion has none.
func (s *SuggestionService) Accept(
	ctx context.Context,
	suggestionID, actorID string,
	chosen entities.RelationType,
) (*entities.RelationshipRequest, []entities.Warning, error) {
	sug, err := s.load(ctx, suggestionID, actorID)
	if err != nil {
		return nil, nil, err
	}

	// A connected candidate is reported as such whatever the suggestion's status.
	if err := s.checkUnconnected(ctx, sug.OwnerID, sug.CandidateID); err != nil {
		return nil, nil, err
	}
	if err := requirePending(sug); err != nil {
		return nil, nil, err
	}

	code := chosen
	if code == "" {
		code = sug.Type
	}
	if code == "" {
		return nil, nil, entities.ErrTypeRequired
	}

	req, warnings, err := s.requests.Propose(ctx, sug.OwnerID, sug.CandidateID, code)
	if err != nil {
		return nil, nil, err
	}
	if err := s.db.UpdateSuggestionStatus(ctx, sug.ID, entities.SuggestionPending, entities.SuggestionAccepted); err != nil {
		return nil, nil, fmt.Errorf("marking suggestion accepted: %w", err)
	}
	return req, warnings, nil
}

// Dismiss hides a suggestion for good.
func (s *SuggestionService) Dismiss(ctx context.Context, suggestionID, actorID string) error {
	sug, err := s.load(ctx, suggestionID, actorID)
	if err != nil {
		return err
	}
	if err := requirePending(sug); err != nil {
		return err
	}
	if err := s.db.UpdateSuggestionStatus(ctx, sug.ID, entities.SuggestionPending, entities.SuggestionDismissed); err != nil {
		return fmt.Errorf("dismissing suggestion: %w", err)
	}
	return nil
}

func (s *SuggestionService) load(ctx context.Context, id, actorID string) (*entities.Suggestion, error) {
	sug, err := s.db.FindSuggestionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding suggestion: %w", err)
	}
	if sug == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrSuggestionNotFound, id)
	}
	if sug.OwnerID != actorID {
		return nil, fmt.Errorf("%w: only the owner may resolve a suggestion", entities.ErrNotAuthorized)
	}
	return sug, nil
}

// checkUnconnected fails when an edge or a pending request already links owner and candidate.
func (s *SuggestionService) checkUnconnected(ctx context.Context, ownerID, candidateID string) error {
	exists, err := s.validator.WouldDuplicate(ctx, ownerID, candidateID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: candidate is already connected", entities.ErrDuplicateRelation)
	}
	for _, pair := range [][2]string{{ownerID, candidateID}, {candidateID, ownerID}} {
		pending, err := s.db.FindPendingRequest(ctx, pair[0], pair[1])
		if err != nil {
			return fmt.Errorf("checking pending request: %w", err)
		}
		if pending != nil {
			return fmt.Errorf("%w: request %s is pending", entities.ErrDuplicateRequest, pending.ID)
		}
	}
	return nil
}

func requirePending(sug *entities.Suggestion) error {
	if sug.Status != entities.SuggestionPending {
		return fmt.Errorf("%w: suggestion is %s", entities.ErrInvalidTransition, sug.Status)
	}
	return nil
}

// excluded returns everyone the owner may not be suggested: existing relations in
// either direction, pending or declined requests, and resolved suggestions.
func (s *SuggestionService) excluded(ctx context.Context, ownerID string) (map[string]bool, error) {
	out := make(map[string]bool)

	held, err := s.store.EdgesOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, e := range held {
		out[e.ObjectID] = true
	}
	incoming, err := s.store.EdgesTo(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, e := range incoming {
		out[e.SubjectID] = true
	}

	reqs, err := s.db.FindRequestsByPerson(ctx, ownerID, "")
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	for _, r := range reqs {
		if r.Status != entities.RequestPending && r.Status != entities.RequestDeclined {
			continue
		}
		if r.RequesterID == ownerID {
			out[r.TargetID] = true
		} else {
			out[r.RequesterID] = true
		}
	}

	sugs, err := s.db.FindSuggestionsByOwner(ctx, ownerID, "")
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}
	for _, sug := range sugs {
		if sug.Status != entities.SuggestionPending {
			out[sug.CandidateID] = true
		}
	}
	return out, nil
}

// rank picks the best path for a candidate. Labeled paths outrank unlabeled ones,
// and direct and marriage codes outrank in-law and extended ones.
func (s *SuggestionService) rank(owner, candidate *entities.Person, ps []path) entities.Suggestion {
	best := -1
	bestWeight := -1
	for i, p := range ps {
		w := 0
		if p.role != "" {
			w = categoryWeight[kinship.RoleCategory(p.role)]
		}
		if w > bestWeight {
			best, bestWeight = i, w
		}
	}
	p := ps[best]

	vias := make(map[string]bool)
	for _, q := range ps {
		vias[q.via.ID] = true
	}
	bonus := len(vias)
	if bonus > maxPathBonus {
		bonus = maxPathBonus
	}

	sug := entities.Suggestion{Score: bestWeight*10 + bonus}
	var reason strings.Builder
	fmt.Fprintf(&reason, "connected through %s (%s is %s of %s, who is %s of %s)",
		p.via.Name, owner.Name, p.first, p.via.Name, p.then, candidate.Name)
	if p.role != "" {
		code, tentative := kinship.CodeFor(p.role, entities.GenderOf(owner))
		if tentative {
			fmt.Fprintf(&reason, "; likely %s, pick the exact code", p.role)
		} else {
			sug.Type = code
		}
	}
	if n := len(vias); n > 1 {
		fmt.Fprintf(&reason, "; %d shared relatives", n)
	}
	sug.Reason = reason.String()
	return sug
}

// consultGuesser asks the fallback guesser for a code. Its answer is only
// attached when it passes the same checks as a user claim.
func (s *SuggestionService) consultGuesser(ctx context.Context, owner, candidate *entities.Person, sug *entities.Suggestion) {
	if s.guesser == nil {
		return
	}
	guess, err := s.guesser.Infer(ctx, owner, candidate)
	if err != nil {
		metrics.guesserCallsTotal.WithLabelValues("error").Inc()
		s.log.WithError(err).WithField("owner", owner.ID).Warn("Relationship guesser failed")
		return
	}
	if guess == nil || guess.Code == "" {
		metrics.guesserCallsTotal.WithLabelValues("empty").Inc()
		return
	}
	if !kinship.IsValid(guess.Code) ||
		guess.Confidence < s.cfg.MinConfidence ||
		!s.validator.GenderMatches(guess.Code, owner) ||
		!s.validator.AgeIsPlausible(guess.Code, owner, candidate) {
		metrics.guesserCallsTotal.WithLabelValues("rejected").Inc()
		s.log.WithFields(logrus.Fields{
			"owner":      owner.ID,
			"candidate":  candidate.ID,
			"code":       guess.Code,
			"confidence": guess.Confidence,
		}).Debug("Discarded guess")
		return
	}
	metrics.guesserCallsTotal.WithLabelValues("accepted").Inc()
	sug.Type = guess.Code
	if guess.Reasoning != "" {
		sug.Reason += "; guessed: " + guess.Reasoning
	}
}

func (s *SuggestionService) publish(ctx context.Context, event entities.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithField("event", event.Type).Warn("Failed to publish event")
	}
}
