package websub

import (
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/xmidt-org/websub/xmetrics"
)

const (
	// SubscriberKey is the Viper subkey under which subscriber configuration is expected.
	SubscriberKey = "subscriber"

	// DefaultRequestTimeout bounds outbound discovery GETs and handshake POSTs when
	// no timeout is configured.
	DefaultRequestTimeout = 30 * time.Second
)

// Factory is external subscriber configuration, typically unmarshaled from Viper.
type Factory struct {
	// CallbackURL is the publicly reachable base URL of the callback endpoint.  Required.
	CallbackURL string `json:"callbackUrl"`

	// Secret is the process-wide secret for per-topic key derivation.  Required.
	Secret string `json:"secret"`

	// RequestTimeout bounds each outbound discovery and handshake request issued by
	// Subscribers built from this Factory.
	RequestTimeout time.Duration `json:"requestTimeout"`
}

// Sub returns the standard child Viper, using SubscriberKey, for this package.
// If passed nil, this function returns nil.
func Sub(v *viper.Viper) *viper.Viper {
	if v != nil {
		return v.Sub(SubscriberKey)
	}

	return nil
}

// NewFactory creates a Factory from a Viper environment.  This function always
// returns a non-nil Factory instance with defaults applied, which makes creating
// a test Factory in client code easy: NewFactory(nil) is valid.
func NewFactory(v *viper.Viper) (*Factory, error) {
	f := &Factory{
		RequestTimeout: DefaultRequestTimeout,
	}

	if v != nil {
		err := v.Unmarshal(
			f,
			viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			)),
		)

		if err != nil {
			return nil, err
		}
	}

	return f, nil
}

// NewSubscriber builds a Subscriber from this Factory's configuration.  The
// registry may be nil, in which case metrics are discarded.
func (f *Factory) NewSubscriber(logger log.Logger, registry xmetrics.Registry, listeners ...Listener) (*Subscriber, error) {
	return New(Options{
		Logger:      logger,
		Client:      &http.Client{Timeout: f.RequestTimeout},
		CallbackURL: f.CallbackURL,
		Secret:      f.Secret,
		Registry:    registry,
		Listeners:   listeners,
	})
}
