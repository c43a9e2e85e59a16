package eth

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"sync"

	"github.com/dao-forum/reconciler/src/utils/config"
	"github.com/dao-forum/reconciler/src/utils/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Logical contract names in the bundle
const (
	AbiFactory = "factory"
	AbiCore    = "core"
	AbiStaking = "staking"
	AbiToken   = "token"
	AbiPresale = "presale"
)

//go:embed abis/bundle.json
var embeddedBundle []byte

var defaultAbiRegistry = sync.OnceValues(func() (*AbiRegistry, error) {
	return NewAbiRegistry(embeddedBundle)
})

// Interface descriptors keyed by logical contract name. Parsed lazily, kept forever.
type AbiRegistry struct {
	log    *logrus.Entry
	raw    map[string]json.RawMessage
	parsed *cache.Cache
}

func NewAbiRegistry(bundle []byte) (self *AbiRegistry, err error) {
	self = new(AbiRegistry)
	self.log = logger.NewSublogger("abi")
	self.parsed = cache.New(cache.NoExpiration, 0)

	err = json.Unmarshal(bundle, &self.raw)
	if err != nil {
		return nil, configurationError("malformed abi bundle: %v", err)
	}
	return
}

// LoadAbiRegistry reads the bundle from the configured URL, path or the embedded copy, in this order
func LoadAbiRegistry(ctx context.Context, config *config.Chain) (self *AbiRegistry, err error) {
	switch {
	case config.AbiBundleUrl != "":
		var resp *resty.Response
		resp, err = resty.New().
			SetTimeout(config.RequestTimeout).
			R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			Get(config.AbiBundleUrl)
		if err != nil {
			// Network failure, the caller may try again
			return
		}
		if !resp.IsSuccess() {
			return nil, configurationError("abi bundle download failed: %s", resp.Status())
		}
		return NewAbiRegistry(resp.Body())
	case config.AbiBundlePath != "":
		var content []byte
		/* #nosec */
		content, err = os.ReadFile(config.AbiBundlePath)
		if err != nil {
			return nil, configurationError("abi bundle not readable: %v", err)
		}
		return NewAbiRegistry(content)
	}
	return defaultAbiRegistry()
}

// Get returns the parsed descriptor. Unknown name or malformed descriptor is a configuration error.
func (self *AbiRegistry) Get(name string) (out *abi.ABI, err error) {
	cached, ok := self.parsed.Get(name)
	if ok {
		return cached.(*abi.ABI), nil
	}

	raw, ok := self.raw[name]
	if !ok {
		return nil, configurationError("abi %q not found in bundle", name)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		self.log.WithError(err).WithField("name", name).Error("Malformed abi")
		return nil, configurationError("abi %q is malformed: %v", name, err)
	}

	out = &parsed
	self.parsed.Set(name, out, cache.NoExpiration)
	return
}
