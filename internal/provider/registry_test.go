package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/difranardo/vacancies-scrapper/internal/pipeline"
	"github.com/difranardo/vacancies-scrapper/internal/scrape"
)

func TestRegistryBuiltins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(pipeline.Timeouts{}, zap.NewNop())
	require.Equal(t, []string{"bumeran", "computrabajo", "zonajobs"}, r.IDs())

	for _, id := range []string{"bumeran", " ZonaJobs ", "COMPUTRABAJO"} {
		site, err := r.Lookup(id)
		require.NoError(t, err, id)
		require.NotNil(t, site)
	}

	_, err := r.Lookup("linkedin")
	require.ErrorIs(t, err, scrape.ErrUnknownProvider)
	_, err = r.Lookup("")
	require.ErrorIs(t, err, scrape.ErrUnknownProvider)
}

type stubSite struct {
	pipeline.Site
	id string
}

func (s stubSite) ID() string { return s.id }

func TestRegistryWithReplacesDuplicates(t *testing.T) {
	t.Parallel()

	first := stubSite{id: "siteA"}
	second := stubSite{id: "SITEA"}
	r := NewRegistryWith(first, second)
	require.Equal(t, []string{"sitea"}, r.IDs())

	got, err := r.Lookup("siteA")
	require.NoError(t, err)
	require.Equal(t, second, got)
}
