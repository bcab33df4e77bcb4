package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	t.Parallel()

	require.Equal(t, "publicacion hace 3 dias", Fold("Publicación hace 3 DÍAS"))
	require.Equal(t, "disenador", Fold("Diseñador"))
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "capital-federal", Slugify("Capital Federal"))
	require.Equal(t, "disenador-grafico", Slugify("  Diseñador  Gráfico! "))
	require.Equal(t, "", Slugify("¡¿?!"))
}

func TestDedupeKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	got := Dedupe([]string{" Prepaga ", "Comedor", "", "Prepaga", "comedor", "  "})
	require.Equal(t, []string{"Prepaga", "Comedor", "comedor"}, got)
}

func TestSortedSet(t *testing.T) {
	t.Parallel()

	got := SortedSet([]string{"remoto", "full-time", "remoto", "junior"})
	require.Equal(t, []string{"full-time", "junior", "remoto"}, got)
}
