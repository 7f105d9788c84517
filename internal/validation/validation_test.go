package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name string `json:"name" validate:"required,max=5"`
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Role string `json:"role" validate:"omitempty,oneof=manager staff"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name string
		data sample
		want string
	}{
		{"valid", sample{Name: "nok", Date: "2024-05-01"}, ""},
		{"missing name", sample{Date: "2024-05-01"}, "name is required"},
		{"long name", sample{Name: "abcdefg", Date: "2024-05-01"}, "name must be at most 5 characters"},
		{"bad date", sample{Name: "nok", Date: "01/05/2024"}, "date must match the format 2006-01-02"},
		{"bad role", sample{Name: "nok", Date: "2024-05-01", Role: "owner"}, "role must be one of manager staff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(&tt.data)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.want)
		})
	}
}
