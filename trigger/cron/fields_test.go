package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseField_RejectsOutOfRangeLiteral(t *testing.T) {
	_, err := NewBaseField("minute", "61", false)
	assert.Error(t, err)

	_, err = NewBaseField("minute", "10-61", false)
	assert.Error(t, err)
}

func TestNewBaseField_AcceptsInRangeLiteral(t *testing.T) {
	f, err := NewBaseField("minute", "0-59", false)
	require.NoError(t, err)
	require.NoError(t, f.Validate())
}

func TestNewMonthField_RejectsOutOfRangeLiteral(t *testing.T) {
	_, err := NewMonthField("13", false)
	assert.Error(t, err)
}

func TestNewDayOfWeekField_RejectsOutOfRangeLiteral(t *testing.T) {
	_, err := NewDayOfWeekField("7", false)
	assert.Error(t, err)
}

func TestDayOfWeekField_IsNotReal(t *testing.T) {
	f, err := NewDayOfWeekField("*", false)
	require.NoError(t, err)
	assert.False(t, f.IsReal())
}
