package analytics

import (
	"encoding/json"
	"fmt"

	"github.com/adnexal/bidserver/usersync"
)

// Module gets a record of each transaction for off-server processing. Implementations
// must not block the request path.
type Module interface {
	LogCookieSyncObject(*CookieSyncObject)
}

// CookieSyncObject is the loggable record of one /cookie_sync transaction.
type CookieSyncObject struct {
	Status       int                `json:"status"`
	Errors       []string           `json:"errors,omitempty"`
	BidderStatus []*usersync.Status `json:"bidder_status"`
}

func (cso *CookieSyncObject) ToJson() string {
	content, err := json.Marshal(cso)
	if err != nil {
		return fmt.Sprintf("Transactional Logs Error: CookieSync object badly formed %v", err)
	}
	return string(content)
}
