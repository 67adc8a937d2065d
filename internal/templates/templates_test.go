package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingData struct {
	Homeowner       struct{ Name string }
	AssessorName    string
	AssessorCompany string
	PropertyAddress string
	ScheduledFor    time.Time
	BookingRef      string
}

func TestNew_ParsesEveryTemplate(t *testing.T) {
	t.Parallel()

	r, err := New(Site{Name: "BER Market", BaseURL: "https://bermarket.ie/"})
	require.NoError(t, err)

	for _, name := range []string{"booking_accepted", "job_live", "status_changed", "digest", "onboarding"} {
		assert.Contains(t, r.templates, name)
	}
	assert.NotContains(t, r.templates, "layout")
	assert.Equal(t, "https://bermarket.ie", r.Site().BaseURL)
}

func TestRender_WrapsContentInLayout(t *testing.T) {
	t.Parallel()

	r, err := New(Site{Name: "BER Market", BaseURL: "https://bermarket.ie"})
	require.NoError(t, err)

	var data bookingData
	data.Homeowner.Name = "Aoife"
	data.AssessorName = "Ciarán"
	data.PropertyAddress = "1 Quay St"
	data.BookingRef = "BK-1"

	html, err := r.Render("booking_accepted", data)
	require.NoError(t, err)

	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "Hi Aoife,")
	assert.Contains(t, html, "https://bermarket.ie/bookings/BK-1")
	assert.Contains(t, html, "to be confirmed", "zero time renders as to be confirmed")
	assert.NotContains(t, html, " of ", "empty company is omitted")
}

func TestRender_EscapesUserContent(t *testing.T) {
	t.Parallel()

	r, err := New(Site{Name: "BER Market", BaseURL: "https://bermarket.ie"})
	require.NoError(t, err)

	var data bookingData
	data.Homeowner.Name = `<script>alert("x")</script>`

	html, err := r.Render("booking_accepted", data)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRender_UnknownTemplate(t *testing.T) {
	t.Parallel()

	r, err := New(Site{Name: "BER Market"})
	require.NoError(t, err)

	_, err = r.Render("invoice", nil)
	assert.ErrorContains(t, err, `unknown template "invoice"`)
}

func TestRender_MissingField(t *testing.T) {
	t.Parallel()

	r, err := New(Site{Name: "BER Market"})
	require.NoError(t, err)

	_, err = r.Render("booking_accepted", struct{ Other string }{})
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "to be confirmed", formatDate(time.Time{}))
	assert.Equal(t, "Mon 19 Oct 2026, 14:05", formatDate(time.Date(2026, 10, 19, 14, 5, 0, 0, time.UTC)))
}
