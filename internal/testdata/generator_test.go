package testdata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/smsledger/internal/categorize"
	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/rules"
	"github.com/jask/smsledger/internal/service"
	"github.com/jask/smsledger/internal/sms"
)

var start = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestGenerateIsDeterministic(t *testing.T) {
	a := NewGenerator(42, start).Generate(50)
	b := NewGenerator(42, start).Generate(50)
	require.Equal(t, a, b)
	require.Len(t, a, 50)
	require.NotEqual(t, a, NewGenerator(7, start).Generate(50))
}

func TestGeneratedKindsMatchEngineOutcomes(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenAndMigrate(filepath.Join(t.TempDir(), "gen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	set, err := rules.Builtin("in")
	require.NoError(t, err)
	require.NoError(t, database.SeedDefaults(ctx, db, set))
	classifier, err := sms.New(set, sms.DefaultParams())
	require.NoError(t, err)
	engine := service.NewEngine(db, classifier, categorize.New(set), service.DefaultOptions())

	msgs := NewGenerator(2024, start).Generate(300)
	kinds := map[Kind]int{}
	for _, m := range msgs {
		kinds[m.Kind]++
		out, err := engine.ProcessAndPersist(ctx, m.RawMessage)
		require.NoError(t, err)

		switch m.Kind {
		case Genuine:
			require.Equal(t, service.OutcomeInserted, out.Kind, "%s: %s", m.ID, m.Body)
		case ExactDuplicate:
			require.Equal(t, service.OutcomeDuplicate, out.Kind)
			require.Equal(t, service.DuplicateExact, out.Duplicate)
		case FuzzyDuplicate:
			require.Equal(t, service.OutcomeDuplicate, out.Kind)
			require.Equal(t, service.DuplicateFuzzy, out.Duplicate)
		case Promotional:
			require.Equal(t, service.Rejected(sms.Promotional), out, m.Body)
		case OTP:
			require.Equal(t, service.Rejected(sms.OtpMessage), out, m.Body)
		case Personal:
			require.Equal(t, service.Rejected(sms.UnknownSender), out, m.Body)
		}
	}
	for k := Genuine; k <= FuzzyDuplicate; k++ {
		require.Positive(t, kinds[k], "no %s messages in 300", k)
	}
}

func TestRaw(t *testing.T) {
	msgs := NewGenerator(1, start).Generate(3)
	raw := Raw(msgs)
	require.Len(t, raw, 3)
	require.Equal(t, msgs[2].RawMessage, raw[2])
}
