// Package metrics publishes best-effort operational counters.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/Parthik04-cyber/shopbackend/internal/aws"
)

// Counter names.
const (
	OrderPlaced        = "OrderPlaced"
	OTPOrderPlaced     = "OTPOrderPlaced"
	OTPVerified        = "OTPVerified"
	OTPRejected        = "OTPRejected"
	NotificationFailed = "NotificationFailed"
	CartTaskFailed     = "CartTaskFailed"
	StatusUpdated      = "StatusUpdated"
)

// DefaultPutTimeout bounds each PutMetricData call.
const DefaultPutTimeout = 500 * time.Millisecond

// CloudWatch increments counters with PutMetricData. Failures are logged and
// never reach the caller.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
	timeout   time.Duration
	nowFunc   func() time.Time
}

// NewCloudWatch returns a recorder writing into namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, logger: logger, timeout: DefaultPutTimeout, nowFunc: time.Now}
}

// Incr adds one to the named counter.
func (c *CloudWatch) Incr(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	one := 1.0
	now := c.nowFunc()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &c.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Unit:       cwtypes.StandardUnitCount,
			Value:      &one,
			Timestamp:  &now,
		}},
	})
	if err != nil {
		c.logger.Warn("put metric failed", zap.String("metric", name), zap.Error(err))
	}
}

// Nop discards every counter.
type Nop struct{}

// Incr implements the recorder interface.
func (Nop) Incr(context.Context, string) {}
