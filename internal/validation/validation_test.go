package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slotInput struct {
	Name  string `json:"name" validate:"required,not_blank,max=255"`
	Count int    `json:"count" validate:"gte=1,lte=100000"`
}

type demandInput struct {
	Add []slotInput `json:"add" validate:"dive"`
}

type requestInput struct {
	Title      string       `json:"title" validate:"required,min=3"`
	Volunteers *demandInput `json:"volunteers"`
}

func TestFieldsValid(t *testing.T) {
	in := requestInput{
		Title:      "Flood relief",
		Volunteers: &demandInput{Add: []slotInput{{Name: "Drivers", Count: 5}}},
	}
	assert.Nil(t, Fields(in))
}

func TestFieldsUsesJSONPaths(t *testing.T) {
	in := requestInput{
		Title:      "ab",
		Volunteers: &demandInput{Add: []slotInput{{Name: "  ", Count: 0}}},
	}

	fields := Fields(in)
	require.NotNil(t, fields)
	assert.Equal(t, []string{"must be at least 3 characters"}, fields["title"])
	assert.Equal(t, []string{"must not be blank"}, fields["volunteers.add[0].name"])
	assert.Equal(t, []string{"must be at least 1"}, fields["volunteers.add[0].count"])
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("b7c1f0e4-7f43-4b55-9d36-2f3c5d8c2f10", "uuid"))
	assert.Error(t, Var("nope", "uuid"))
}
