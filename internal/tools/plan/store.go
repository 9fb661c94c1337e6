// Package plan implements the TodoWrite/TodoRead, Plan, and Questions
// catalog entries: small pieces of session-scoped state the model uses
// to track its own work and to pause for user input, distinct from the
// filesystem/process tools that touch the outside world.
package plan

import "sync"

// TodoStatus is the lifecycle state of one todo item.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is one entry in the session's task list.
type Todo struct {
	Content string     `json:"content"`
	Status  TodoStatus `json:"status"`
}

// Store holds the mutable state shared by the TodoWrite/TodoRead and
// Plan tools across calls within one session. A turn loop constructs one
// Store per session and hands the same pointer to every tool instance it
// registers, the same way the rest of the catalog shares a *snapshot.Manager.
type Store struct {
	mu       sync.Mutex
	todos    []Todo
	planText string
	planSet  bool
}

// NewStore creates an empty per-session plan/todo store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) setTodos(todos []Todo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = todos
}

func (s *Store) getTodos() []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Todo, len(s.todos))
	copy(out, s.todos)
	return out
}

func (s *Store) setPlan(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planText = text
	s.planSet = true
}

func (s *Store) getPlan() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planText, s.planSet
}
