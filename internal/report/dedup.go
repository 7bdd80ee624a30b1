package report

// DedupState holds everything observed during one run. It only grows.
type DedupState struct {
	statusCodes map[int]struct{}
	headers     map[string][]string
	bodies      map[string]struct{}
}

// NewDedupState creates an empty state
func NewDedupState() *DedupState {
	return &DedupState{
		statusCodes: make(map[int]struct{}),
		headers:     make(map[string][]string),
		bodies:      make(map[string]struct{}),
	}
}

// ObserveStatus records code and reports whether it was new
func (s *DedupState) ObserveStatus(code int) bool {
	if _, ok := s.statusCodes[code]; ok {
		return false
	}
	s.statusCodes[code] = struct{}{}
	return true
}

// ObserveHeader records the name/value pair and reports whether it was new.
// name must already be lower-case.
func (s *DedupState) ObserveHeader(name, value string) bool {
	for _, seen := range s.headers[name] {
		if seen == value {
			return false
		}
	}
	s.headers[name] = append(s.headers[name], value)
	return true
}

// ObserveBody records body and reports whether it was new
func (s *DedupState) ObserveBody(body string) bool {
	if _, ok := s.bodies[body]; ok {
		return false
	}
	s.bodies[body] = struct{}{}
	return true
}

// HeaderValues returns the values seen so far for name
func (s *DedupState) HeaderValues(name string) []string {
	return append([]string(nil), s.headers[name]...)
}
