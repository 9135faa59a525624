package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind distinguishes lecture rooms from lab rooms.
type Kind string

const (
	KindLecture Kind = "LECTURE"
	KindLab     Kind = "LAB"
)

// Status is a per-room availability override. Rooms without an override are
// available; storing StatusAvailable removes the override entry.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusUnavailable Status = "UNAVAILABLE"
)

// ErrNotFound is returned when the named classroom does not exist.
var ErrNotFound = errors.New("catalog: classroom not found")

// Classroom describes a bookable room.
type Classroom struct {
	Name     string
	Kind     Kind
	Capacity int
}

// AllowedCapacity returns the admission ceiling: half the declared capacity,
// rounded down.
func (c Classroom) AllowedCapacity() int {
	return c.Capacity / 2
}

// Catalog maintains the classroom definitions and room-status overrides.
// It guards its state with its own lock, independent of the reservation
// store lock.
type Catalog struct {
	mu         sync.RWMutex
	path       string
	statusPath string
	rooms      map[string]Classroom
	overrides  map[string]Status
}

type seedFile struct {
	Classrooms []struct {
		Name     string `yaml:"name"`
		Kind     string `yaml:"kind"`
		Capacity int    `yaml:"capacity"`
	} `yaml:"classrooms"`
}

// Open loads the catalog from dir, seeding the classroom file from the
// embedded defaults (or the optional seed override) when it does not exist.
func Open(dir, seedPath string) (*Catalog, error) {
	c := &Catalog{
		path:       filepath.Join(dir, "classrooms.txt"),
		statusPath: filepath.Join(dir, "room_status.txt"),
		rooms:      make(map[string]Classroom),
		overrides:  make(map[string]Status),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		if err := c.seed(seedPath); err != nil {
			return nil, err
		}
	}

	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) seed(seedPath string) error {
	data := defaultSeed
	if seedPath != "" {
		content, err := os.ReadFile(seedPath)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		data = content
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	rooms := make(map[string]Classroom, len(seed.Classrooms))
	for _, entry := range seed.Classrooms {
		kind := Kind(strings.ToUpper(strings.TrimSpace(entry.Kind)))
		if kind != KindLecture && kind != KindLab {
			return fmt.Errorf("seed file: unknown kind %q for room %q", entry.Kind, entry.Name)
		}
		if entry.Capacity <= 0 {
			return fmt.Errorf("seed file: non-positive capacity for room %q", entry.Name)
		}
		name := strings.TrimSpace(entry.Name)
		rooms[name] = Classroom{Name: name, Kind: kind, Capacity: entry.Capacity}
	}

	return writeClassroomFile(c.path, rooms)
}

func (c *Catalog) load() error {
	rooms, err := readClassroomFile(c.path)
	if err != nil {
		return err
	}
	overrides, err := readStatusFile(c.statusPath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.rooms = rooms
	c.overrides = overrides
	c.mu.Unlock()
	return nil
}

// Refresh re-reads both files, discarding in-memory state.
func (c *Catalog) Refresh() error {
	return c.load()
}

// Exists reports whether the named classroom is defined.
func (c *Catalog) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[name]
	return ok
}

// Get returns the named classroom or ErrNotFound.
func (c *Catalog) Get(name string) (Classroom, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.rooms[name]
	if !ok {
		return Classroom{}, ErrNotFound
	}
	return room, nil
}

// List returns the classrooms of the given kind sorted by name. A zero kind
// returns every classroom.
func (c *Catalog) List(kind Kind) []Classroom {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Classroom, 0, len(c.rooms))
	for _, room := range c.rooms {
		if kind != "" && room.Kind != kind {
			continue
		}
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Add defines a new classroom and persists the catalog.
func (c *Catalog) Add(room Classroom) error {
	if strings.TrimSpace(room.Name) == "" {
		return fmt.Errorf("catalog: empty room name")
	}
	if room.Kind != KindLecture && room.Kind != KindLab {
		return fmt.Errorf("catalog: unknown kind %q", room.Kind)
	}
	if room.Capacity <= 0 {
		return fmt.Errorf("catalog: non-positive capacity %d", room.Capacity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room.Name]; ok {
		return fmt.Errorf("catalog: room %q already exists", room.Name)
	}
	c.rooms[room.Name] = room
	return writeClassroomFile(c.path, c.rooms)
}

// UpdateCapacity replaces the declared capacity of an existing classroom.
func (c *Catalog) UpdateCapacity(name string, capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("catalog: non-positive capacity %d", capacity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[name]
	if !ok {
		return ErrNotFound
	}
	room.Capacity = capacity
	c.rooms[name] = room
	return writeClassroomFile(c.path, c.rooms)
}

// Delete removes a classroom definition and any status override for it.
// Callers enforce the approved-reservation policy before deleting.
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[name]; !ok {
		return ErrNotFound
	}
	delete(c.rooms, name)
	if _, ok := c.overrides[name]; ok {
		delete(c.overrides, name)
		if err := writeStatusFile(c.statusPath, c.overrides); err != nil {
			return err
		}
	}
	return writeClassroomFile(c.path, c.rooms)
}

// Status returns the effective availability of the named room.
func (c *Catalog) Status(name string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st, ok := c.overrides[name]; ok {
		return st
	}
	return StatusAvailable
}

// SetStatus records or clears the availability override for a room.
func (c *Catalog) SetStatus(name string, status Status) error {
	if status != StatusAvailable && status != StatusUnavailable {
		return fmt.Errorf("catalog: unknown status %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if status == StatusAvailable {
		delete(c.overrides, name)
	} else {
		c.overrides[name] = status
	}
	return writeStatusFile(c.statusPath, c.overrides)
}

func readClassroomFile(path string) (map[string]Classroom, error) {
	rooms := make(map[string]Classroom)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rooms, nil
		}
		return nil, fmt.Errorf("open classroom file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || capacity <= 0 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		rooms[name] = Classroom{
			Name:     name,
			Kind:     Kind(strings.TrimSpace(parts[1])),
			Capacity: capacity,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read classroom file: %w", err)
	}
	return rooms, nil
}

func writeClassroomFile(path string, rooms map[string]Classroom) error {
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("# classroom catalog: name,kind,capacity\n")
	for _, name := range names {
		room := rooms[name]
		fmt.Fprintf(&sb, "%s,%s,%d\n", room.Name, room.Kind, room.Capacity)
	}
	return writeAtomic(path, []byte(sb.String()))
}

func readStatusFile(path string) (map[string]Status, error) {
	overrides := make(map[string]Status)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return overrides, nil
		}
		return nil, fmt.Errorf("open status file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), ",")
		if len(parts) < 2 {
			continue
		}
		overrides[strings.TrimSpace(parts[0])] = Status(strings.TrimSpace(parts[1]))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}
	return overrides, nil
}

func writeStatusFile(path string, overrides map[string]Status) error {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s,%s\n", name, overrides[name])
	}
	return writeAtomic(path, []byte(sb.String()))
}

// writeAtomic writes content to a sibling temp file and renames it into
// place so readers never observe a half-written file.
func writeAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
