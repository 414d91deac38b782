package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/enrich-cli/internal/leads"
	"github.com/replypilot/enrich-cli/internal/model"
)

func editCmdForTest() *cobra.Command {
	c := &cobra.Command{}
	for _, name := range editableFlags {
		c.Flags().String(name, "", "")
	}
	return c
}

func TestPatchFromFlags(t *testing.T) {
	c := editCmdForTest()
	require.NoError(t, c.Flags().Set("email", "a@acme.ca"))
	require.NoError(t, c.Flags().Set("tiktok", ""))
	require.NoError(t, c.Flags().Set("keywords", "plumbing, drains"))

	p, err := patchFromFlags(c)
	require.NoError(t, err)
	require.NotNil(t, p.Email)
	assert.Equal(t, "a@acme.ca", *p.Email)
	require.NotNil(t, p.Tiktok, "an explicitly empty flag clears the field")
	assert.Equal(t, "", *p.Tiktok)
	assert.Equal(t, leads.Keywords{"plumbing", "drains"}, *p.Keywords)
	assert.Nil(t, p.Name)
	assert.Nil(t, p.Phone)
}

func TestPatchFromFlags_NothingSet(t *testing.T) {
	_, err := patchFromFlags(editCmdForTest())
	assert.Error(t, err)
}

func TestFormatLeads(t *testing.T) {
	ls := []model.Lead{
		{
			ID: "abc12345-6789-0000-0000-000000000000", Name: "Acme Plumbing", Location: "Toronto, ON",
			Website: "https://acme.ca", IdentityComplete: true,
			Sources: []model.LeadSource{{URL: "https://acme.ca"}},
		},
		{ID: "def", Name: "Beta Cafe", Location: "Ottawa"},
	}

	var buf bytes.Buffer
	formatLeads(&buf, ls)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "Acme Plumbing")
	assert.Contains(t, out, "https://acme.ca")
	assert.Contains(t, out, "Beta Cafe")
	assert.Contains(t, out, "-")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
