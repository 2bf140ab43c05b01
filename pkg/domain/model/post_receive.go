package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// RepoType distinguishes the project repository from its wiki repository
type RepoType string

const (
	RepoTypeProject RepoType = "project"
	RepoTypeWiki    RepoType = "wiki"
)

// GLRepository identifies the pushed repository, e.g. "project-42" or "wiki-42"
type GLRepository struct {
	Type      RepoType
	ProjectID int64
}

// ParseGLRepository parses the gl_repository identifier sent by the Git server
func ParseGLRepository(s string) (GLRepository, error) {
	kind, id, ok := strings.Cut(s, "-")
	if !ok {
		return GLRepository{}, goerr.New("invalid gl_repository", goerr.V("gl_repository", s))
	}

	projectID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || projectID <= 0 {
		return GLRepository{}, goerr.New("invalid project id in gl_repository", goerr.V("gl_repository", s))
	}

	switch RepoType(kind) {
	case RepoTypeProject, RepoTypeWiki:
		return GLRepository{Type: RepoType(kind), ProjectID: projectID}, nil
	default:
		return GLRepository{}, goerr.New("unsupported repository type", goerr.V("gl_repository", s))
	}
}

func (r GLRepository) String() string {
	return string(r.Type) + "-" + strconv.FormatInt(r.ProjectID, 10)
}

// PostReceiveRequest is one push notification
type PostReceiveRequest struct {
	GLRepository string    `json:"gl_repository" validate:"required"`
	UserID       int64     `json:"user_id" validate:"required,gt=0"`
	Changes      []string  `json:"changes" validate:"required,min=1"`
	PushOptions  []string  `json:"push_options"`
	ReceivedAt   time.Time `json:"-"`
}

// ParsePushOptions turns "key=value" push options into a map. Options without a value map to "true".
// "ci.variable" options are collected separately as pipeline variables.
func ParsePushOptions(options []string) (opts map[string]string, variables map[string]string) {
	opts = map[string]string{}
	variables = map[string]string{}
	for _, o := range options {
		key, value, found := strings.Cut(o, "=")
		if !found {
			value = "true"
		}
		if key == "ci.variable" {
			if k, v, ok := strings.Cut(value, "="); ok && k != "" {
				variables[k] = v
			}
			continue
		}
		opts[key] = value
	}
	return opts, variables
}
