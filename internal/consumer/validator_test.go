package consumer_test

import (
	"testing"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/consumer"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"github.com/stretchr/testify/require"
)

func validatorConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Rules = config.DefaultRules()
	return cfg
}

func f(v float64) *float64 { return &v }

func TestValidateMessage_ValidReading(t *testing.T) {
	msg := &models.ReadingMessage{
		SubjectID: "s1",
		Timestamp: time.Now().Unix(),
		Metrics: map[string]*float64{
			"heart_rate":  f(72),
			"temperature": f(36.8),
		},
	}

	r, err := consumer.ValidateMessage(msg, validatorConfig())
	require.NoError(t, err)
	require.Equal(t, "s1", r.SubjectID)
	require.Equal(t, 72.0, r.Metrics["heart_rate"])
	require.Equal(t, 36.8, r.Metrics["temperature"])
}

func TestValidateMessage_MissingSubjectID(t *testing.T) {
	msg := &models.ReadingMessage{
		Timestamp: time.Now().Unix(),
		Metrics:   map[string]*float64{"heart_rate": f(72)},
	}

	_, err := consumer.ValidateMessage(msg, validatorConfig())
	require.ErrorIs(t, err, consumer.ErrInvalidReading)
}

func TestValidateMessage_FutureTimestamp(t *testing.T) {
	msg := &models.ReadingMessage{
		SubjectID: "s1",
		Timestamp: time.Now().Add(time.Hour).Unix(),
		Metrics:   map[string]*float64{"heart_rate": f(72)},
	}

	_, err := consumer.ValidateMessage(msg, validatorConfig())
	require.ErrorIs(t, err, consumer.ErrInvalidReading)
}

func TestValidateMessage_ValueOutsideValidDomain(t *testing.T) {
	// heart_rate 1000 超出有效域 [20, 300]，整条消息拒绝
	msg := &models.ReadingMessage{
		SubjectID: "s1",
		Timestamp: time.Now().Unix(),
		Metrics:   map[string]*float64{"heart_rate": f(1000)},
	}

	_, err := consumer.ValidateMessage(msg, validatorConfig())
	require.ErrorIs(t, err, consumer.ErrInvalidReading)
}

func TestValidateMessage_NullMetricDropped(t *testing.T) {
	msg := &models.ReadingMessage{
		SubjectID: "s1",
		Timestamp: time.Now().Unix(),
		Metrics: map[string]*float64{
			"heart_rate":  f(72),
			"temperature": nil,
		},
	}

	r, err := consumer.ValidateMessage(msg, validatorConfig())
	require.NoError(t, err)
	require.Contains(t, r.Metrics, "heart_rate")
	require.NotContains(t, r.Metrics, "temperature")
}

func TestValidateMessage_AllMetricsNull(t *testing.T) {
	msg := &models.ReadingMessage{
		SubjectID: "s1",
		Timestamp: time.Now().Unix(),
		Metrics:   map[string]*float64{"heart_rate": nil},
	}

	_, err := consumer.ValidateMessage(msg, validatorConfig())
	require.ErrorIs(t, err, consumer.ErrInvalidReading)
}

func TestValidateMessage_UnconfiguredMetricKept(t *testing.T) {
	msg := &models.ReadingMessage{
		SubjectID: "s1",
		Timestamp: time.Now().Unix(),
		Metrics:   map[string]*float64{"glucose": f(5.4)},
	}

	r, err := consumer.ValidateMessage(msg, validatorConfig())
	require.NoError(t, err)
	require.Equal(t, 5.4, r.Metrics["glucose"])
}
