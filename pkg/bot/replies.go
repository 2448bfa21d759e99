package bot

import (
	"fmt"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/parser"
)

// Replies holds the texts sent back to users.
type Replies struct {
	Usage         string
	InvalidAmount string
	NotLinked     string
	WriteFailed   string
	Saved         string
}

// DefaultReplies returns the Italian replies for the given grammar.
// linked selects the confirmation used when expenses go to a user account.
func DefaultReplies(mode parser.Mode, linked bool) Replies {
	saved := "✅ Spesa registrata!"
	if linked {
		saved = "✅ Spesa registrata sul tuo account!"
	}

	return Replies{
		Usage:         "Formato non valido. Usa: " + mode.Usage(),
		InvalidAmount: "❌ Importo non valido. Usa un numero, es: 15.50 Spesa",
		NotLinked:     "⚠️ Numero non collegato ad alcun account. Vai sull'app e registra il tuo numero.",
		WriteFailed:   "❌ Errore nel salvataggio. Riprova più tardi.",
		Saved:         saved,
	}
}

func (r Replies) confirm(e api.Expense) string {
	return fmt.Sprintf("%s\n%s € · %s", r.Saved, e.Amount.StringFixed(2), e.Category)
}
