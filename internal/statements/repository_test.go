package statements

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strengthlab/quartet/internal/apperr"
	"github.com/strengthlab/quartet/internal/model"
)

func poolCSV(perDimension int) string {
	var b strings.Builder
	b.WriteString("statement_id,dimension,text,social_desirability,factor_loading\n")
	for _, dim := range model.Dimensions {
		for i := 0; i < perDimension; i++ {
			b.WriteString(string(dim))
			b.WriteString("-")
			b.WriteString(itoa(i))
			b.WriteString(",")
			b.WriteString(string(dim))
			b.WriteString(",statement text,4.0,0.8\n")
		}
	}
	return b.String()
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}

func TestLoadValidPool(t *testing.T) {
	repo, err := Load(strings.NewReader(poolCSV(12)))
	require.NoError(t, err)

	for _, dim := range model.Dimensions {
		assert.Len(t, repo.ByDimension(dim), 12)
	}
	assert.Len(t, repo.All(), 12*12)

	s, ok := repo.Get("T1-00")
	require.True(t, ok)
	assert.Equal(t, model.T1, s.Dimension)

	_, ok = repo.Get("does-not-exist")
	assert.False(t, ok)
}

func TestLoadInsufficientPool(t *testing.T) {
	_, err := Load(strings.NewReader(poolCSV(5)))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PoolInsufficient))
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	csv := "statement_id,dimension,text,social_desirability,factor_loading\n" +
		"T1-00,T1,a,4.0,0.8\n" +
		"T1-00,T1,b,4.0,0.8\n"
	_, err := Load(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestLoadRejectsMissingColumn(t *testing.T) {
	csv := "statement_id,dimension,text,social_desirability\nT1-00,T1,a,4.0\n"
	_, err := Load(strings.NewReader(csv))
	assert.Error(t, err)
}

func TestLoadRejectsBadDimension(t *testing.T) {
	csv := "statement_id,dimension,text,social_desirability,factor_loading\n" +
		"X-00,T99,a,4.0,0.8\n"
	_, err := Load(strings.NewReader(csv))
	assert.Error(t, err)
}
