// Package scenefile loads and saves animation scenes. Scenes are stored as
// a flat node table (parent indices, not nesting) in JSON or YAML. Key
// times are integer nanoseconds, the same resolution as anim.Key.
package scenefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/zsiec/bonecast/internal/anim"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format is an on-disk scene encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for a format name or extension that is not
// supported.
var ErrUnknownFormat = errors.New("scenefile: unknown format")

// ParseFormat accepts "json", "yaml" or "yml". An empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatFromPath picks a format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Store reads and writes scene files on the local filesystem.
type Store struct{}

// Load reads the scene at path, detecting the format from its extension.
func (Store) Load(path string) (*anim.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenefile: load %s: %w", path, err)
	}
	scene, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("scenefile: load %s: %w", path, err)
	}
	return scene, nil
}

// Save writes scene to path in format.
func (Store) Save(scene *anim.Scene, path string, format Format) error {
	data, err := Encode(scene, format)
	if err != nil {
		return fmt.Errorf("scenefile: save %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("scenefile: save %s: %w", path, err)
	}
	return nil
}

type fileScene struct {
	Name  string     `json:"name" yaml:"name"`
	Nodes []fileNode `json:"nodes" yaml:"nodes"`
}

type fileNode struct {
	Name        string      `json:"name" yaml:"name"`
	Attr        string      `json:"attr" yaml:"attr"`
	Parent      int         `json:"parent" yaml:"parent"`
	CustomID    *int        `json:"customId,omitempty" yaml:"customId,omitempty"`
	Link        string      `json:"link,omitempty" yaml:"link,omitempty"`
	Translation fileChannel `json:"translation" yaml:"translation"`
	Rotation    fileChannel `json:"rotation" yaml:"rotation"`
}

type fileChannel struct {
	Default [3]float64  `json:"default" yaml:"default,flow"`
	Curves  []fileCurve `json:"curves,omitempty" yaml:"curves,omitempty"`
}

type fileCurve struct {
	Keys []fileKey `json:"keys" yaml:"keys"`
}

type fileKey struct {
	TimeNs int64   `json:"t" yaml:"t"`
	Value  float64 `json:"v" yaml:"v"`
	Interp string  `json:"i" yaml:"i"`
}

// Encode serializes scene. Node 0 (the scene root) is implicit and not
// written; parent -1 means a top-level node.
func Encode(scene *anim.Scene, format Format) ([]byte, error) {
	fs := fileScene{Name: scene.Name}
	for id := anim.RootID + 1; int(id) < scene.Len(); id++ {
		n := scene.Node(id)
		fn := fileNode{
			Name:        n.Name,
			Attr:        n.Attr.String(),
			Parent:      int(scene.Parent(id)) - 1,
			Link:        n.Link,
			Translation: encodeChannel(&n.Translation),
			Rotation:    encodeChannel(&n.Rotation),
		}
		if n.CustomID != anim.NoJointID {
			v := int(n.CustomID)
			fn.CustomID = &v
		}
		fs.Nodes = append(fs.Nodes, fn)
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(fs, "", "  ")
	case FormatYAML:
		return yaml.Marshal(fs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Decode parses a scene produced by Encode. Parents must precede their
// children in the node table.
func Decode(data []byte, format Format) (*anim.Scene, error) {
	var fs fileScene
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &fs)
	case FormatYAML:
		err = yaml.Unmarshal(data, &fs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	scene := anim.NewScene(fs.Name)
	for i, fn := range fs.Nodes {
		if fn.Parent < -1 || fn.Parent >= i {
			return nil, fmt.Errorf("node %d (%s): parent %d out of order", i, fn.Name, fn.Parent)
		}
		attr, err := anim.ParseAttribute(fn.Attr)
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, fn.Name, err)
		}
		id := scene.Add(anim.NodeID(fn.Parent+1), fn.Name, attr)
		n := scene.Node(id)
		n.Link = fn.Link
		if fn.CustomID != nil {
			n.CustomID = anim.JointID(*fn.CustomID)
		}
		if err := decodeChannel(&n.Translation, fn.Translation); err != nil {
			return nil, fmt.Errorf("node %d (%s) translation: %w", i, fn.Name, err)
		}
		if err := decodeChannel(&n.Rotation, fn.Rotation); err != nil {
			return nil, fmt.Errorf("node %d (%s) rotation: %w", i, fn.Name, err)
		}
	}
	return scene, nil
}

func encodeChannel(ch *anim.Channel) fileChannel {
	fc := fileChannel{Default: [3]float64{ch.Default.X, ch.Default.Y, ch.Default.Z}}
	if !ch.Animated() {
		return fc
	}
	for _, comp := range []anim.Component{anim.X, anim.Y, anim.Z} {
		cv := ch.Curve(comp)
		keys := make([]fileKey, 0, cv.Len())
		for i := 0; i < cv.Len(); i++ {
			k := cv.Key(i)
			keys = append(keys, fileKey{TimeNs: int64(k.Time), Value: k.Value, Interp: k.Interp.String()})
		}
		fc.Curves = append(fc.Curves, fileCurve{Keys: keys})
	}
	return fc
}

func decodeChannel(ch *anim.Channel, fc fileChannel) error {
	ch.Default = anim.Vec3{X: fc.Default[0], Y: fc.Default[1], Z: fc.Default[2]}
	switch len(fc.Curves) {
	case 0:
		return nil
	case 3:
	default:
		return fmt.Errorf("want 0 or 3 curves, got %d", len(fc.Curves))
	}

	var curves [3]*anim.Curve
	for c, f := range fc.Curves {
		cv := &anim.Curve{}
		for _, k := range f.Keys {
			interp, err := anim.ParseInterpolation(k.Interp)
			if err != nil {
				return err
			}
			cv.Insert(anim.Key{Time: time.Duration(k.TimeNs), Value: k.Value, Interp: interp})
		}
		curves[c] = cv
	}
	ch.SetCurves(curves[0], curves[1], curves[2])
	return nil
}
