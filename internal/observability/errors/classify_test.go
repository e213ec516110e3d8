package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/target/marketpulse/internal/domain/model"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, "stage_precondition", Classify(fmt.Errorf("run: %w", model.Precondition("no data"))))
	assert.Equal(t, "stage_upstream", Classify(model.Upstream("model", errors.New("503"))))
	assert.Equal(t, "errors_errorstring", Classify(fmt.Errorf("wrap: %w", errors.New("x"))))
	assert.Equal(t, "context_deadlineexceedederror", Classify(context.DeadlineExceeded))
}
