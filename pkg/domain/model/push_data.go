package model

// PushData is the hook payload describing a branch or tag push
type PushData struct {
	ObjectKind        string            `json:"object_kind"`
	EventName         string            `json:"event_name"`
	Before            string            `json:"before"`
	After             string            `json:"after"`
	Ref               string            `json:"ref"`
	RefProtected      bool              `json:"ref_protected"`
	CheckoutSHA       *string           `json:"checkout_sha"`
	Message           *string           `json:"message"`
	UserID            int64             `json:"user_id"`
	UserName          string            `json:"user_name"`
	UserUsername      string            `json:"user_username"`
	UserEmail         string            `json:"user_email"`
	ProjectID         int64             `json:"project_id"`
	Project           PushDataProject   `json:"project"`
	Commits           []PushDataCommit  `json:"commits"`
	TotalCommitsCount int               `json:"total_commits_count"`
	PushOptions       map[string]string `json:"push_options"`
	Repository        PushDataRepo      `json:"repository"`
}

type PushDataProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	WebURL            string `json:"web_url"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
}

type PushDataCommit struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Title     string         `json:"title"`
	Timestamp string         `json:"timestamp"`
	URL       string         `json:"url"`
	Author    PushDataAuthor `json:"author"`
	Added     []string       `json:"added"`
	Modified  []string       `json:"modified"`
	Removed   []string       `json:"removed"`
}

type PushDataAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PushDataRepo struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Homepage   string `json:"homepage"`
	GitHTTPURL string `json:"git_http_url"`
	GitSSHURL  string `json:"git_ssh_url"`
}

// RepositoryUpdateData is the system hook payload sent once per push
type RepositoryUpdateData struct {
	EventName string                   `json:"event_name"`
	UserID    int64                    `json:"user_id"`
	UserName  string                   `json:"user_name"`
	UserEmail string                   `json:"user_email"`
	ProjectID int64                    `json:"project_id"`
	Project   PushDataProject          `json:"project"`
	Changes   []RepositoryUpdateChange `json:"changes"`
	Refs      []string                 `json:"refs"`
}

type RepositoryUpdateChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
	Ref    string `json:"ref"`
}

// WikiPageData is the hook payload for one wiki page change
type WikiPageData struct {
	ObjectKind       string             `json:"object_kind"`
	User             User               `json:"user"`
	Project          PushDataProject    `json:"project"`
	ObjectAttributes WikiPageAttributes `json:"object_attributes"`
}

type WikiPageAttributes struct {
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	Action string `json:"action"`
	URL    string `json:"url"`
}
