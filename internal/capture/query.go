package capture

import (
	"github.com/neboloop/chplg-devtools/internal/protocol"
	"github.com/neboloop/chplg-devtools/internal/store"
)

// queryParams are the filters a host attaches to QUERY_* messages.
type queryParams struct {
	Level       store.LevelList  `json:"level"`
	Since       store.SinceValue `json:"since"`
	ExtensionID string           `json:"extensionId"`
	Search      string           `json:"search"`
	URLPattern  string           `json:"urlPattern"`
	Limit       int              `json:"limit"`
	Last        bool             `json:"last"`
}

func (p queryParams) filter() store.Filter {
	return store.Filter{
		Levels:      p.Level,
		Since:       string(p.Since),
		ExtensionID: p.ExtensionID,
		Search:      p.Search,
		URLPattern:  p.URLPattern,
		Limit:       p.Limit,
	}
}

// HandleQuery answers a QUERY_* or CLEAR_LOGS message from the host with
// the matching *_RESULT carrying the same requestId.
func (a *Agent) HandleQuery(msg protocol.Message) {
	resultType, ok := protocol.ResultTypeFor(msg.Type)
	if !ok {
		a.logger.Warn("not a query", "type", msg.Type)
		return
	}

	var p queryParams
	if err := msg.DecodeParams(&p); err != nil {
		a.logger.Warn("bad query params", "type", msg.Type, "error", err)
	}

	reply := protocol.Message{Type: resultType, RequestID: msg.RequestID}
	var data any
	switch msg.Type {
	case protocol.TypeQueryLogs:
		data = a.collector.GetLogs(p.filter())
	case protocol.TypeQueryErrors:
		errs := a.collector.GetErrors(p.filter())
		if p.Last && len(errs) > 1 {
			errs = errs[len(errs)-1:]
		}
		data = errs
	case protocol.TypeQueryStatus:
		data = a.collector.GetStatus()
	case protocol.TypeClearLogs:
		a.collector.ClearLogs()
		reply.Success = protocol.Bool(true)
	}

	if data != nil {
		m, err := protocol.New(resultType, data)
		if err != nil {
			a.logger.Warn("encode query result", "type", resultType, "error", err)
			return
		}
		reply.Data = m.Data
	}
	a.link.SendMessage(reply)
}
