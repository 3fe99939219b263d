package bidder

import (
	"fmt"
	"sort"

	"github.com/adnexal/bidserver/config"
	"github.com/adnexal/bidserver/usersync"
)

// Info describes one configured bidder.
type Info struct {
	Active       bool
	AliasOf      string
	CookieFamily string
	GDPRVendorID uint16
	Syncer       *usersync.Usersyncer
}

// Catalog is the process-wide bidder registry. It is immutable after NewCatalog returns,
// so concurrent reads need no locking.
type Catalog struct {
	bidders     map[string]Info
	activeNames []string
}

// NewCatalog builds the catalog from configuration, constructing a usersyncer per bidder
// which has a sync URL.
func NewCatalog(cfg map[string]config.Bidder) (*Catalog, error) {
	bidders := make(map[string]Info, len(cfg))
	for name, bidderCfg := range cfg {
		info := Info{
			Active:       bidderCfg.Active,
			AliasOf:      bidderCfg.AliasOf,
			CookieFamily: bidderCfg.CookieFamily,
			GDPRVendorID: bidderCfg.GDPRVendorID,
		}
		if bidderCfg.UsersyncURL != "" {
			syncer, err := usersync.NewUsersyncer(bidderCfg.CookieFamily, bidderCfg.UsersyncURL, bidderCfg.UsersyncType, bidderCfg.SupportCORS)
			if err != nil {
				return nil, fmt.Errorf("bidders.%s: %v", name, err)
			}
			info.Syncer = syncer
		}
		bidders[name] = info
	}

	activeNames := make([]string, 0, len(bidders))
	for name, info := range bidders {
		if info.AliasOf != "" {
			if _, ok := bidders[info.AliasOf]; !ok {
				return nil, fmt.Errorf("bidders.%s is an alias of unknown bidder %s", name, info.AliasOf)
			}
			continue
		}
		if info.Active {
			activeNames = append(activeNames, name)
		}
	}
	sort.Strings(activeNames)

	return &Catalog{
		bidders:     bidders,
		activeNames: activeNames,
	}, nil
}

// Names returns every configured bidder name, aliases included.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.bidders))
	for name := range c.bidders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveNames returns the canonical bidders which are active, sorted for determinism.
func (c *Catalog) ActiveNames() []string {
	return c.activeNames
}

func (c *Catalog) IsValidName(name string) bool {
	_, ok := c.bidders[name]
	return ok
}

func (c *Catalog) IsAlias(name string) bool {
	info, ok := c.bidders[name]
	return ok && info.AliasOf != ""
}

// NameByAlias returns the canonical name for an alias, or the name itself otherwise.
func (c *Catalog) NameByAlias(alias string) string {
	if info, ok := c.bidders[alias]; ok && info.AliasOf != "" {
		return info.AliasOf
	}
	return alias
}

func (c *Catalog) IsActive(name string) bool {
	info, ok := c.bidders[name]
	return ok && info.Active
}

// VendorIDByName resolves aliases and returns the GDPR vendor id of an active bidder.
// The second return is false for unknown, inactive or id-less bidders.
func (c *Catalog) VendorIDByName(name string) (uint16, bool) {
	info, ok := c.bidders[c.NameByAlias(name)]
	if !ok || !info.Active || info.GDPRVendorID == 0 {
		return 0, false
	}
	return info.GDPRVendorID, true
}

// CookieFamilyByName resolves aliases and returns the bidder's cookie family.
func (c *Catalog) CookieFamilyByName(name string) (string, bool) {
	info, ok := c.bidders[c.NameByAlias(name)]
	if !ok || info.CookieFamily == "" {
		return "", false
	}
	return info.CookieFamily, true
}

// SyncerByName resolves aliases and returns the bidder's usersyncer.
func (c *Catalog) SyncerByName(name string) (*usersync.Usersyncer, bool) {
	info, ok := c.bidders[c.NameByAlias(name)]
	if !ok || info.Syncer == nil {
		return nil, false
	}
	return info.Syncer, true
}
