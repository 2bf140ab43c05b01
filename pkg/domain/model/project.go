package model

// BranchProtection is the protection applied to a newly created default branch
type BranchProtection int

const (
	// BranchProtectionNone leaves the default branch unprotected
	BranchProtectionNone BranchProtection = iota
	// BranchProtectionPartial lets developers push, maintainers merge
	BranchProtectionPartial
	// BranchProtectionFull restricts push and merge to maintainers
	BranchProtectionFull
	// BranchProtectionAgainstDeveloperPushes lets developers merge but only maintainers push
	BranchProtectionAgainstDeveloperPushes
)

// AccessLevel mirrors the role required for a protected branch action
type AccessLevel int

const (
	AccessNoOne      AccessLevel = 0
	AccessDeveloper  AccessLevel = 30
	AccessMaintainer AccessLevel = 40
)

// AccessLevels returns the push and merge levels for the protection setting.
// ok is false for BranchProtectionNone.
func (p BranchProtection) AccessLevels() (push, merge AccessLevel, ok bool) {
	switch p {
	case BranchProtectionPartial:
		return AccessDeveloper, AccessMaintainer, true
	case BranchProtectionFull:
		return AccessMaintainer, AccessMaintainer, true
	case BranchProtectionAgainstDeveloperPushes:
		return AccessMaintainer, AccessDeveloper, true
	default:
		return 0, 0, false
	}
}

type Project struct {
	ID                      int64            `json:"id"`
	Name                    string           `json:"name"`
	FullPath                string           `json:"path_with_namespace"`
	WebURL                  string           `json:"web_url"`
	DefaultBranch           string           `json:"default_branch"`
	RepositoryPath          string           `json:"-"`
	WikiRepositoryPath      string           `json:"-"`
	WikiDefaultBranch       string           `json:"-"`
	IssuesEnabled           bool             `json:"-"`
	RemoteMirrorsEnabled    bool             `json:"-"`
	DefaultBranchProtection BranchProtection `json:"-"`
}

// IsEmptyRepo reports whether no default branch was set yet
func (p *Project) IsEmptyRepo() bool {
	return p.DefaultBranch == ""
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type ProtectedBranch struct {
	ID               int64       `json:"id"`
	ProjectID        int64       `json:"project_id"`
	Name             string      `json:"name"`
	PushAccessLevel  AccessLevel `json:"push_access_level"`
	MergeAccessLevel AccessLevel `json:"merge_access_level"`
}

type EnvironmentState string

const (
	EnvironmentAvailable EnvironmentState = "available"
	EnvironmentStopped   EnvironmentState = "stopped"
)

type Environment struct {
	ID        int64            `json:"id"`
	ProjectID int64            `json:"project_id"`
	Name      string           `json:"name"`
	Ref       string           `json:"ref"`
	State     EnvironmentState `json:"state"`
}

type MirrorStatus string

const (
	MirrorNone      MirrorStatus = "none"
	MirrorScheduled MirrorStatus = "scheduled"
	MirrorStarted   MirrorStatus = "started"
	MirrorFinished  MirrorStatus = "finished"
	MirrorFailed    MirrorStatus = "failed"
)

type RemoteMirror struct {
	ID                  int64        `json:"id"`
	ProjectID           int64        `json:"project_id"`
	URL                 string       `json:"url"`
	Enabled             bool         `json:"enabled"`
	UpdateStatus        MirrorStatus `json:"update_status"`
	LastError           string       `json:"last_error,omitempty"`
	LastUpdateStartedAt int64        `json:"last_update_started_at"`
}
