package lambda

import "fmt"

// ProxySource represents the source of a lambda request.
type ProxySource string

const (
	// ProxySourceApiGatewayV1 represents an API Gateway v1 request.
	ProxySourceApiGatewayV1 ProxySource = "API_GW_V1"

	// ProxySourceApiGatewayV2 represents an API Gateway v2 request.
	ProxySourceApiGatewayV2 ProxySource = "API_GW_V2"

	// ProxySourceAlb represents an Application Load Balancer request.
	ProxySourceAlb ProxySource = "ALB"
)

func (p ProxySource) String() string {
	return string(p)
}

// DefaultProxySource is used if no proxy source is configured.
const DefaultProxySource = ProxySourceApiGatewayV2

type Config struct {
	// ProxySource is the source of the AWS Lambda event.
	ProxySource ProxySource `conf:"proxy_source"`
}

// Validate reports ErrInvalidProxySource for an unknown event source.
func (c Config) Validate() error {
	switch c.ProxySource {
	case ProxySourceApiGatewayV1, ProxySourceApiGatewayV2, ProxySourceAlb:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProxySource, c.ProxySource)
	}
}

// DefaultConfig returns the default values of the lambda config.
func DefaultConfig() map[string]any {
	return map[string]any{
		"proxy_source": DefaultProxySource.String(),
	}
}
