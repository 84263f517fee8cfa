package target

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mcpgate/internal/api"
)

func TestNameFilter_Expose(t *testing.T) {
	tests := []struct {
		name     string
		filter   NameFilter
		upstream string
		want     string
		wantOK   bool
	}{
		{"zero exposes unchanged", NameFilter{}, "search", "search", true},
		{"include hit", IncludeOnly("search"), "search", "search", true},
		{"include miss", IncludeOnly("search"), "delete", "", false},
		{"empty include hides everything", IncludeOnly(), "search", "", false},
		{"exclude hit", ExcludeNames("delete"), "delete", "", false},
		{"exclude miss", ExcludeNames("delete"), "search", "search", true},
		{"prefix", WithPrefix("gh_"), "search", "gh_search", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.filter.Expose(tt.upstream)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNameFilter_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		filter   NameFilter
		exposed  string
		want     string
		wantKind api.Kind
	}{
		{"zero", NameFilter{}, "search", "search", ""},
		{"prefix stripped", WithPrefix("gh_"), "gh_search", "search", ""},
		{"missing prefix is unknown", WithPrefix("gh_"), "search", "", api.KindNotFound},
		{"included", IncludeOnly("search"), "search", "search", ""},
		{"not included is disabled", IncludeOnly("search"), "delete", "", api.KindDisabled},
		{"empty include is disabled", IncludeOnly(), "search", "", api.KindDisabled},
		{"excluded is disabled", ExcludeNames("delete"), "delete", "", api.KindDisabled},
		{"not excluded", ExcludeNames("delete"), "search", "search", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.Resolve("tool", tt.exposed)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, api.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNameFilter_Validate(t *testing.T) {
	both := IncludeOnly("a")
	both.Exclude = []string{"b"}
	assert.True(t, api.IsBadRequest(both.Validate()))

	prefixed := ExcludeNames("a")
	prefixed.Prefix = "p_"
	assert.True(t, api.IsBadRequest(prefixed.Validate()))

	assert.NoError(t, IncludeOnly().Validate())
	assert.NoError(t, NameFilter{}.Validate())
}

func TestNameFilter_Decode(t *testing.T) {
	t.Run("yaml include and exclude", func(t *testing.T) {
		var f NameFilter
		err := yaml.Unmarshal([]byte("include: [a]\nexclude: [b]\n"), &f)
		assert.True(t, api.IsBadRequest(err))
	})

	t.Run("json include and exclude", func(t *testing.T) {
		var f NameFilter
		err := json.Unmarshal([]byte(`{"include":["a"],"exclude":["b"]}`), &f)
		assert.True(t, api.IsBadRequest(err))
	})

	t.Run("json empty include stays set", func(t *testing.T) {
		var f NameFilter
		require.NoError(t, json.Unmarshal([]byte(`{"include":[]}`), &f))
		require.NotNil(t, f.Include)
		assert.Empty(t, *f.Include)
		_, ok := f.Expose("anything")
		assert.False(t, ok)
	})

	t.Run("yaml empty include stays set", func(t *testing.T) {
		var f NameFilter
		require.NoError(t, yaml.Unmarshal([]byte("include: []\n"), &f))
		require.NotNil(t, f.Include)
		assert.Empty(t, *f.Include)
	})

	t.Run("yaml absent include", func(t *testing.T) {
		var f NameFilter
		require.NoError(t, yaml.Unmarshal([]byte("prefix: gh_\n"), &f))
		assert.Nil(t, f.Include)
		assert.Equal(t, "gh_", f.Prefix)
	})
}

func TestNameFilter_CloneIsDeep(t *testing.T) {
	orig := IncludeOnly("a")
	clone := orig.Clone()
	(*clone.Include)[0] = "changed"
	assert.Equal(t, "a", (*orig.Include)[0])
}
