package pagesync

// PageStore holds the page count of the loaded document and the locally
// displayed page. It is not safe for concurrent use; a client drives it from a
// single event loop.
type PageStore struct {
	count     int
	page      int
	listeners []*pageListener
}

type pageListener struct {
	fn func(page int)
}

func NewPageStore() *PageStore {
	return &PageStore{}
}

func (s *PageStore) PageCount() int {
	return s.count
}

func (s *PageStore) Page() int {
	return s.page
}

// Known reports whether a document has reported its page count.
func (s *PageStore) Known() bool {
	return s.count > 0
}

// SetPageCount records the page count once per document. A provisional page
// outside the new range falls back to 0 without notifying listeners.
func (s *PageStore) SetPageCount(count int) error {
	if count <= 0 {
		return ErrInvalidInput
	}
	if s.count > 0 {
		return ErrPageCountFixed
	}
	s.count = count
	if s.page >= count {
		s.page = 0
	}
	return nil
}

// Unload forgets the page count of the current document instance. The page
// index stays as a provisional value for the next one.
func (s *PageStore) Unload() {
	s.count = 0
}

// SetPage accepts page and notifies every listener, even when page equals the
// current value. Before the page count is known any non-negative page is
// accepted provisionally.
func (s *PageStore) SetPage(page int) error {
	if page < 0 || (s.count > 0 && page >= s.count) {
		return &OutOfRangeError{Page: page, Count: s.count}
	}
	s.page = page
	for _, l := range append([]*pageListener(nil), s.listeners...) {
		l.fn(page)
	}
	return nil
}

// OnChange registers fn and returns a function that removes it.
func (s *PageStore) OnChange(fn func(page int)) func() {
	l := &pageListener{fn: fn}
	s.listeners = append(s.listeners, l)
	return func() {
		for i, existing := range s.listeners {
			if existing == l {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
