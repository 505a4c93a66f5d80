package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil slice", nil, nil},
		{"empty slice", []string{}, nil},
		{"only blanks", []string{"", "  "}, nil},
		{"trims whitespace", []string{"  kafka-1:9092  ", "kafka-2:9092 "}, []string{"kafka-1:9092", "kafka-2:9092"}},
		{"removes duplicates preserving order", []string{"b", "a", "b", "c", "a"}, []string{"b", "a", "c"}},
		{"combined", []string{"  a ", "b", "a", "", "  ", "b"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, SplitList("kafka-1:9092, kafka-2:9092,,kafka-1:9092"))
	assert.Nil(t, SplitList(""))
}
