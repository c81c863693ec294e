package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAction(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawAction
		want    Action
		wantErr bool
	}{
		{
			name: "click",
			raw:  RawAction{Kind: "Click", Locator: " #7 "},
			want: Action{Kind: ActionClick, Locator: "#7"},
		},
		{
			name: "type alias becomes fill",
			raw:  RawAction{Kind: "type", Locator: "Search", Value: "pizza"},
			want: Action{Kind: ActionFill, Locator: "Search", Value: "pizza"},
		},
		{
			name: "press takes key from value",
			raw:  RawAction{Kind: "press", Locator: "Search", Value: "Enter"},
			want: Action{Kind: ActionPress, Locator: "Search", Value: "Enter", Key: "Enter"},
		},
		{
			name: "press defaults to enter",
			raw:  RawAction{Kind: "press", Locator: "Search"},
			want: Action{Kind: ActionPress, Locator: "Search", Key: "Enter"},
		},
		{
			name: "wait without locator",
			raw:  RawAction{Kind: "wait", Duration: "1500"},
			want: Action{Kind: ActionWait, DurationMs: 1500},
		},
		{
			name: "wait with invalid duration",
			raw:  RawAction{Kind: "wait", Duration: "soon"},
			want: Action{Kind: ActionWait},
		},
		{
			name:    "unknown kind",
			raw:     RawAction{Kind: "hover", Locator: "x"},
			want:    Action{Kind: "hover", Locator: "x"},
			wantErr: true,
		},
		{
			name:    "empty locator",
			raw:     RawAction{Kind: "click"},
			want:    Action{Kind: ActionClick},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAction(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedAction))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionMasked(t *testing.T) {
	a := Action{Kind: ActionFill, Locator: "Password", Value: "hunter2"}
	assert.Equal(t, "******", a.Masked("hunter2").Value)
	assert.Equal(t, "hunter2", a.Value)
	assert.Equal(t, "hunter2", a.Masked("").Value)
}

func TestCampaignRequestValidate(t *testing.T) {
	ok := CampaignRequest{Prompt: "save pizza places", TargetURL: "app.example.com", Username: "u", Password: "p"}
	require.NoError(t, ok.Validate())

	bad := CampaignRequest{Prompt: "x", Username: "u"}
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "target_url")
	assert.Contains(t, err.Error(), "password")
	assert.NotContains(t, err.Error(), "prompt")
}

func TestCampaignRequestRedacted(t *testing.T) {
	r := CampaignRequest{Password: "secret"}
	assert.Equal(t, "******", r.Redacted().Password)
	assert.Equal(t, "", CampaignRequest{}.Redacted().Password)
}

func TestOutcome(t *testing.T) {
	assert.True(t, Success().OK())
	assert.Equal(t, "success", Success().String())

	f := Failure(FailureTimeout, "button never visible")
	assert.False(t, f.OK())
	assert.Equal(t, "failure(timeout): button never visible", f.String())
	assert.Equal(t, "failure(verification_failed)", Failure(FailureVerificationFailed, "").String())
}
