package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/start9labs/appmgr/internal/apperr"
)

func TestExitCodeForMapsKnownKinds(t *testing.T) {
	assert.Equal(t, 13, exitCodeFor(apperr.New(apperr.NotFound, "no such package", nil)))
	assert.Equal(t, 9, exitCodeFor(apperr.New(apperr.ConfigRulesViolation, "unsatisfied", nil)))
	assert.Equal(t, 17, exitCodeFor(apperr.New(apperr.Pack, "bad archive", nil)))
}

func TestExitCodeForDefaultsToOneForUnclassifiedErrors(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(errors.New("boom")))
}

func TestExitCodeForUnwrapsToOutermostKind(t *testing.T) {
	wrapped := apperr.New(apperr.ConfigGen, "cascade failed", apperr.New(apperr.Docker, "exec failed", nil))

	assert.Equal(t, exitCodes[apperr.ConfigGen], exitCodeFor(wrapped))
}
