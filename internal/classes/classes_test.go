package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSize(t *testing.T) {
	assert.Equal(t, 80, Count)
	assert.Len(t, cocoNames, Count)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		label string
		index int
		ok    bool
	}{
		{"persona", 0, true},
		{"coche", 2, true},
		{"perro", 16, true},
		{"cepillo de dientes", 79, true},
		{"avión", 4, true},
		{"Persona", 0, false},
		{"persona ", 0, false},
		{"person", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			i, ok := Lookup(tt.label)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.index, i)
				assert.Equal(t, tt.label, Name(i))
			}
		})
	}
}

func TestNameOutOfRange(t *testing.T) {
	assert.Equal(t, "", Name(-1))
	assert.Equal(t, "", Name(Count))
	assert.Equal(t, "", COCOName(Count))
	assert.Equal(t, "dog", COCOName(16))
}

func TestLabelsUnique(t *testing.T) {
	assert.Len(t, index, Count)
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, Count)
	assert.Equal(t, Class{Index: 0, Label: "persona", COCO: "person"}, all[0])
	assert.Equal(t, Class{Index: 62, Label: "televisión", COCO: "tv"}, all[62])
	for _, c := range all {
		assert.Equal(t, Name(c.Index), c.Label)
		assert.Equal(t, COCOName(c.Index), c.COCO)
	}
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, []string{"oso", "oso de peluche"}, Suggest("OSO", 0))
	assert.Len(t, Suggest("a", 3), 3)
	assert.Nil(t, Suggest("  ", 5))
}
