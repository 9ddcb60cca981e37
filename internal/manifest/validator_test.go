package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDocuments(t *testing.T) {
	docs := map[string]string{
		"index.json":       SchemaIndex,
		"ascii.json":       SchemaManifest,
		"collections.json": SchemaCollections,
	}
	for file, schema := range docs {
		t.Run(file, func(t *testing.T) {
			result, err := Validate(schema, readTestdata(t, file))
			require.NoError(t, err)
			assert.True(t, result.Valid, "issues: %s", result.Summary())
		})
	}
}

func TestValidate_IssueFields(t *testing.T) {
	data := []byte(`{"name":"x","releases":[{"version":"1.0.0","interface":"cli",
		"artifact":{"any":{"url":"u","sha256":"nothex"}}}]}`)

	result, err := Validate(SchemaManifest, data)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Issues)

	issue := result.Issues[0]
	assert.Equal(t, "/releases/0/artifact/any/sha256", issue.Path)
	assert.Equal(t, "pattern", issue.Keyword)
	assert.NotEmpty(t, issue.Message)
	assert.Contains(t, result.Summary(), "/releases/0/artifact/any/sha256")
}

func TestValidate_InvalidJSON(t *testing.T) {
	_, err := Validate(SchemaIndex, []byte("not json{{{"))
	assert.Error(t, err)
}

func TestValidate_UnknownSchema(t *testing.T) {
	_, err := Validate("nope.schema.json", []byte(`{}`))
	assert.Error(t, err)
}

func TestValidateYAML(t *testing.T) {
	result, err := ValidateYAML(SchemaPlugin, []byte("name: ascii\ninterface: cli\nexecutable: ascii\n"))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = ValidateYAML(SchemaPlugin, []byte("name: ascii\n"))
	require.NoError(t, err)
	assert.False(t, result.Valid)

	_, err = ValidateYAML(SchemaPlugin, []byte("name: [unclosed"))
	assert.Error(t, err)
}
