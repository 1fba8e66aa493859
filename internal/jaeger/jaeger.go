package jaeger

import (
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/jaeger"
)

const defaultEndpoint = "http://jaeger:14268/api/traces"

// MustNewJaeger creates a collector exporter from otel.jaeger_* config.
func MustNewJaeger() *jaeger.Exporter {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(collectorOptions()...))
	if err != nil {
		panic(err)
	}

	return exp
}

func collectorOptions() []jaeger.CollectorEndpointOption {
	endpoint := viper.GetString("otel.jaeger_endpoint")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	opts := []jaeger.CollectorEndpointOption{jaeger.WithEndpoint(endpoint)}
	if user := viper.GetString("otel.jaeger_user"); user != "" {
		opts = append(opts,
			jaeger.WithUsername(user),
			jaeger.WithPassword(viper.GetString("otel.jaeger_password")),
		)
	}

	return opts
}
