package notify

import "time"

// Recipient is a person an email is addressed to.
type Recipient struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// BookingAccepted is sent to a homeowner once an assessor accepts their booking.
type BookingAccepted struct {
	Homeowner       Recipient `yaml:"homeowner"`
	AssessorName    string    `yaml:"assessor_name"`
	AssessorCompany string    `yaml:"assessor_company"`
	PropertyAddress string    `yaml:"property_address"`
	ScheduledFor    time.Time `yaml:"scheduled_for"`
	BookingRef      string    `yaml:"booking_ref"`
}

// Job is the public summary of a posted assessment job.
type Job struct {
	Ref          string `yaml:"ref"`
	Title        string `yaml:"title"`
	County       string `yaml:"county"`
	PropertyType string `yaml:"property_type"`
	Budget       string `yaml:"budget"`
}

// JobLive announces a newly published job to the assessors covering it.
type JobLive struct {
	Job        Job         `yaml:"job"`
	Recipients []Recipient `yaml:"recipients"`
}

// StatusChanged tells a homeowner their job moved to a new status.
type StatusChanged struct {
	Homeowner Recipient `yaml:"homeowner"`
	JobRef    string    `yaml:"job_ref"`
	Title     string    `yaml:"title"`
	OldStatus string    `yaml:"old_status"`
	NewStatus string    `yaml:"new_status"`
}

// DigestJob is one entry of a periodic digest.
type DigestJob struct {
	Ref      string    `yaml:"ref"`
	Title    string    `yaml:"title"`
	County   string    `yaml:"county"`
	PostedAt time.Time `yaml:"posted_at"`
}

// Digest summarises the jobs posted in a period for every subscriber.
type Digest struct {
	// Period reads naturally after "posted", e.g. "this week".
	Period      string      `yaml:"period"`
	Jobs        []DigestJob `yaml:"jobs"`
	Subscribers []Recipient `yaml:"subscribers"`
}

// OnboardingInvite delivers an account access link. Unlike the other
// notifications it is required: delivery failures are returned.
type OnboardingInvite struct {
	Recipient    Recipient `yaml:"recipient"`
	Organisation string    `yaml:"organisation"`
	Role         string    `yaml:"role"`
	Link         string    `yaml:"link"`
	ExpiresAt    time.Time `yaml:"expires_at"`
}

// recipientView is the per-recipient data for broadcast templates.
type recipientView struct {
	Recipient Recipient
	Job       Job
}

type digestView struct {
	Recipient Recipient
	Period    string
	Jobs      []DigestJob
}
