package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

func sampleDeclarations() []parsers.RawDeclaration {
	return []parsers.RawDeclaration{
		{
			Subject:         "Ahmed",
			SubjectGender:   "male",
			Relation:        "father",
			Object:          "Amina",
			ObjectGender:    "female",
			ObjectBirthDate: "1998-11-20",
		},
		{
			Subject:       "Ahmed",
			SubjectGender: "male",
			Relation:      "father_in_law",
			Object:        "Karim | Jr",
			ObjectGender:  "unknown",
		},
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatJSON(&buf, sampleDeclarations()))

	var parsed []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Len(t, parsed, 2)
	assert.Equal(t, "Ahmed", parsed[0]["subject"])
	assert.Equal(t, "father", parsed[0]["relation"])
	assert.Equal(t, "1998-11-20", parsed[0]["object_birth_date"])
	assert.NotContains(t, parsed[0], "subject_birth_date", "empty dates are omitted")
}

func TestFormatJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestFormatCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatCSV(&buf, sampleDeclarations()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Equal(t, "Ahmed,male,,father,Amina,female,1998-11-20", lines[1])
}

func TestExportIsImportable(t *testing.T) {
	decls := sampleDeclarations()

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, formatCSV(&buf, decls))

		parsed, err := (&parsers.CSVParser{}).Parse(&buf)
		require.NoError(t, err)
		require.Len(t, parsed, 2)
		assert.Equal(t, "Karim | Jr", parsed[1].Object)
		assert.Equal(t, "father_in_law", parsed[1].Relation)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, formatJSON(&buf, decls))

		parsed, err := (&parsers.JSONParser{}).Parse(&buf)
		require.NoError(t, err)
		require.Len(t, parsed, 2)
		assert.Equal(t, "1998-11-20", parsed[0].ObjectBirthDate)
	})
}

func TestFormatMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatMarkdown(&buf, sampleDeclarations()))

	out := buf.String()
	assert.Contains(t, out, "Total: 2")
	assert.Contains(t, out, "| Ahmed | father | Amina |")
	assert.Contains(t, out, "| Ahmed | father-in-law | Karim \\| Jr |")
}

func TestFormatDeclarations_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := formatDeclarations(&buf, sampleDeclarations(), "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestCollectDeclarations(t *testing.T) {
	born := time.Date(1998, 11, 20, 0, 0, 0, 0, time.UTC)
	ahmed := &entities.Person{ID: "p1", Name: "Ahmed", Gender: entities.GenderMale}
	amina := &entities.Person{ID: "p2", Name: "Amina", Gender: entities.GenderFemale, BirthDate: &born}
	fatima := &entities.Person{ID: "p3", Name: "Fatima", Gender: entities.GenderFemale}

	held := map[string][]handlers.RelationInfo{
		"p1": {
			{Relationship: entities.Relationship{SubjectID: "p1", ObjectID: "p2", Type: entities.RelationFather}, Other: amina},
		},
		"p2": {
			{Relationship: entities.Relationship{SubjectID: "p2", ObjectID: "p1", Type: entities.RelationDaughter}, Other: ahmed},
			{Relationship: entities.Relationship{SubjectID: "p2", ObjectID: "p3", Type: entities.RelationDaughter, Automatic: true}, Other: fatima},
		},
		"p3": {
			{Relationship: entities.Relationship{SubjectID: "p3", ObjectID: "p2", Type: entities.RelationMother, Automatic: true}, Other: amina},
		},
	}
	persons := []*entities.Person{ahmed, amina, fatima}

	declared := collectDeclarations(persons, held, false)
	require.Len(t, declared, 1, "one row per mirrored pair")
	assert.Equal(t, "Ahmed", declared[0].Subject)
	assert.Equal(t, "father", declared[0].Relation)
	assert.Equal(t, "1998-11-20", declared[0].ObjectBirthDate)

	all := collectDeclarations(persons, held, true)
	require.Len(t, all, 2)
	assert.Equal(t, "Amina", all[1].Subject)
	assert.Equal(t, "daughter", all[1].Relation)
}
