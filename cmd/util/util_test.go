package util

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

func TestFriendlyMessage(t *testing.T) {
	message, ok := FriendlyMessage(errors.New("plain"))
	assert.False(t, ok)
	assert.Empty(t, message)

	friendly := errors.NewFriendlyError("scope %q is not configured", "A/B")
	message, ok = FriendlyMessage(friendly)
	assert.True(t, ok)
	assert.Equal(t, `scope "A/B" is not configured`, message)

	// The friendly message survives context wrapping.
	message, ok = FriendlyMessage(errors.WithContext(friendly, "start daemon"))
	assert.True(t, ok)
	assert.Equal(t, `scope "A/B" is not configured`, message)
}
