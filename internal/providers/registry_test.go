package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/opla/internal/types"
)

func TestGetByIDOrName(t *testing.T) {
	r := NewRegistry()
	r.Register(types.Provider{ID: "p1", Name: "local"}, nil)
	r.Register(types.Provider{ID: "p2", Name: "openai"}, nil)

	p, _, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, types.ProviderID("p2"), p.ID)

	p, _, err = r.Get("")
	require.NoError(t, err)
	assert.Equal(t, types.ProviderID("p1"), p.ID, "first registered is the default")

	_, _, err = r.Get("missing")
	assert.Error(t, err)
}

func TestGetDisabled(t *testing.T) {
	r := NewRegistry()
	r.Register(types.Provider{ID: "p1", Name: "off", Disabled: true}, nil)

	_, _, err := r.Get("off")
	assert.Error(t, err)
}

func TestRecordErrorCapsLog(t *testing.T) {
	r := NewRegistry()
	r.Register(types.Provider{ID: "p1", Name: "local"}, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MaxErrors+5; i++ {
		r.RecordError("p1", fmt.Errorf("failure %d", i), now)
	}

	errs := r.Errors("local")
	require.Len(t, errs, MaxErrors)
	assert.True(t, strings.HasSuffix(errs[0], "failure 5"), "oldest evicted")
	assert.True(t, strings.HasSuffix(errs[MaxErrors-1], fmt.Sprintf("failure %d", MaxErrors+4)))
}

func TestRecordErrorIgnoresNilAndUnknown(t *testing.T) {
	r := NewRegistry()
	r.Register(types.Provider{ID: "p1"}, nil)

	r.RecordError("p1", nil, time.Now())
	r.RecordError("nope", errors.New("x"), time.Now())

	assert.Empty(t, r.Errors("p1"))
}

func TestListReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Register(types.Provider{ID: "p1"}, nil)
	r.RecordError("p1", errors.New("boom"), time.Now())

	list := r.List()
	list[0].Errors[0] = "changed"

	assert.NotEqual(t, "changed", r.Errors("p1")[0])
}
