package cron_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mooassistant/moo/internal/cron"
)

func TestValidateExprAcceptsStandardExpressions(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 8 * * *", "30 18 * * 1-5", "@daily"} {
		require.NoError(t, cron.ValidateExpr(expr), expr)
	}
}

func TestValidateExprRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "every five minutes", "61 * * * *", "* * *"} {
		require.Error(t, cron.ValidateExpr(expr), expr)
	}
}
