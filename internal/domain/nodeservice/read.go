package nodeservice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/antbox/ecm/internal/domain/apperrors"
	"github.com/antbox/ecm/internal/domain/nodes"
)

// Get implements spec.md §4.J get: uuid or FID lookup, permission
// checked against the parent folder (or the folder itself, for Folder
// nodes; a smart folder is checked against its parent).
func (s *Service) Get(ctx context.Context, principal Principal, ref string) (*nodes.Node, error) {
	n, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.checkOnAncestry(ctx, principal, n, nodes.Read); err != nil {
		return nil, err
	}
	return redactSecret(n), nil
}

// List implements spec.md §4.J list: defaults to Root, evaluates
// smart folders in place of listing them, sorts folders first then by
// title, and injects the virtual system folder as a child of Root.
func (s *Service) List(ctx context.Context, principal Principal, parentRef string) ([]*nodes.Node, error) {
	if parentRef == "" {
		parentRef = nodes.RootFolderUUID
	}
	parent, err := s.resolveRef(ctx, parentRef)
	if err != nil {
		return nil, err
	}
	if err := s.checkOnAncestry(ctx, principal, parent, nodes.Read); err != nil {
		return nil, err
	}

	var children []*nodes.Node
	if parent.IsSmartFolder() {
		children, err = s.evaluateSmartFolder(ctx, parent)
	} else {
		children, err = s.repo.GetChildren(ctx, parent.UUID)
	}
	if err != nil {
		return nil, err
	}

	if parent.UUID == nodes.RootFolderUUID {
		children = append(children, systemFolderNode())
	}

	sort.SliceStable(children, func(i, j int) bool {
		fi, fj := children[i].IsFolderLike(), children[j].IsFolderLike()
		if fi != fj {
			return fi
		}
		return children[i].Title < children[j].Title
	})

	for i := range children {
		children[i] = redactSecret(children[i])
	}
	return children, nil
}

// Evaluate implements spec.md §4.J evaluate: uuid must resolve to a
// smart folder.
func (s *Service) Evaluate(ctx context.Context, principal Principal, ref string) ([]*nodes.Node, error) {
	n, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !n.IsSmartFolder() {
		return nil, apperrors.NotFound(apperrors.TagSmartFolderNotFound, "not a smart folder: "+ref)
	}
	if err := s.checkOnAncestry(ctx, principal, n, nodes.Read); err != nil {
		return nil, err
	}
	return s.evaluateSmartFolder(ctx, n)
}

// evaluateSmartFolderPageSize is large enough to return every match in
// one page for the common smart-folder sizes this system targets;
// evaluate and list both want the full result set, not one page of it.
const evaluateSmartFolderPageSize = 10000

func (s *Service) evaluateSmartFolder(ctx context.Context, smartFolder *nodes.Node) ([]*nodes.Node, error) {
	page, err := s.repo.Filter(ctx, smartFolder.SmartFolder.Filter, evaluateSmartFolderPageSize, 1)
	if err != nil {
		return nil, err
	}
	return page.Nodes, nil
}

// Breadcrumb is one entry of Breadcrumbs' result.
type Breadcrumb struct {
	UUID  string
	Title string
}

// Breadcrumbs implements spec.md §4.J breadcrumbs: walks parent
// upward, always including Root at the front.
func (s *Service) Breadcrumbs(ctx context.Context, principal Principal, ref string) ([]Breadcrumb, error) {
	n, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	var trail []Breadcrumb
	current := n
	for {
		trail = append([]Breadcrumb{{UUID: current.UUID, Title: current.Title}}, trail...)
		if current.UUID == nodes.RootFolderUUID || current.Parent == "" {
			break
		}
		parent, err := s.repo.GetByID(ctx, current.Parent)
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				break
			}
			return nil, err
		}
		current = parent
	}
	if len(trail) == 0 || trail[0].UUID != nodes.RootFolderUUID {
		trail = append([]Breadcrumb{{UUID: nodes.RootFolderUUID, Title: "Root"}}, trail...)
	}
	return trail, nil
}

// ExportedFile is the result of Export: spec.md §4.J's file, named
// after the node's title and typed per the reserved-mimetype mapping.
type ExportedFile struct {
	Name     string
	Mimetype string
	Content  io.ReadCloser
}

// exportMimetype remaps certain reserved node mimetypes on output
// (spec.md §4.J export, §6).
func exportMimetype(n *nodes.Node) string {
	switch n.Mimetype {
	case nodes.MimetypeFeature:
		return "application/javascript"
	case nodes.MimetypeSmartFolder:
		return "application/json"
	default:
		return string(n.Mimetype)
	}
}

// Export implements spec.md §4.J export: requires Export on the
// parent folder.
func (s *Service) Export(ctx context.Context, principal Principal, ref string) (*ExportedFile, error) {
	n, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.checkOnAncestry(ctx, principal, n, nodes.Export); err != nil {
		return nil, err
	}
	content, err := s.binary.Read(ctx, n.UUID)
	if err != nil {
		if !apperrors.Is(err, apperrors.KindNotFound) {
			return nil, err
		}
		derived, ok, derr := derivedExportContent(n)
		if derr != nil {
			return nil, derr
		}
		if !ok {
			return nil, err
		}
		content = derived
	}
	return &ExportedFile{Name: n.Title, Mimetype: exportMimetype(n), Content: content}, nil
}

// derivedExportContent synthesizes export content for node variants
// that don't carry an uploaded binary: a Smart Folder exports its own
// filter definition, a Feature exports its declared attributes as a
// JS module. ok is false for any other variant, leaving the original
// Binary Store error to propagate.
func derivedExportContent(n *nodes.Node) (content io.Reader, ok bool, err error) {
	switch n.Mimetype {
	case nodes.MimetypeSmartFolder:
		if n.SmartFolder == nil {
			return nil, false, nil
		}
		data, err := json.Marshal(n.SmartFolder)
		if err != nil {
			return nil, false, apperrors.Unknown("failed to serialize smart folder", err)
		}
		return bytes.NewReader(data), true, nil
	case nodes.MimetypeFeature:
		if n.Feature == nil {
			return nil, false, nil
		}
		data, err := json.Marshal(n.Feature)
		if err != nil {
			return nil, false, apperrors.Unknown("failed to serialize feature", err)
		}
		return bytes.NewReader(append([]byte("module.exports = "), data...)), true, nil
	default:
		return nil, false, nil
	}
}

// redactSecret clears an api-key node's Secret for standard reads
// (spec.md invariant 8); only CloneWithSecret may disclose it.
func redactSecret(n *nodes.Node) *nodes.Node {
	if n == nil || n.ApiKey == nil || n.ApiKey.Secret == "" {
		return n
	}
	clone := *n
	redacted := *n.ApiKey
	redacted.Secret = ""
	clone.ApiKey = &redacted
	return &clone
}

// CloneWithSecret returns the node including its api-key secret — the
// single dedicated operation spec.md invariant 8 permits to disclose
// it.
func (s *Service) CloneWithSecret(ctx context.Context, principal Principal, ref string) (*nodes.Node, error) {
	n, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !n.IsApiKey() {
		return nil, apperrors.NotFound(apperrors.TagApiKeyNotFound, "not an api-key node: "+ref)
	}
	if err := s.checkOnAncestry(ctx, principal, n, nodes.Read); err != nil {
		return nil, err
	}
	clone := *n
	return &clone, nil
}

func systemFolderNode() *nodes.Node {
	return &nodes.Node{
		Base: nodes.Base{
			UUID:     nodes.SystemFolderUUID,
			Fid:      nodes.SystemFolderUUID,
			Title:    "System",
			Mimetype: nodes.MimetypeFolder,
			Parent:   nodes.RootFolderUUID,
		},
		Folder: &nodes.FolderAttrs{Permissions: nodes.DefaultPermissions()},
	}
}
