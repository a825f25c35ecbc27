package api

import "strconv"

// Tag labels cached results for bulk invalidation. A Tag with an empty ID is
// a type tag: invalidating it hits every entry that provides any tag of the
// same Type.
type Tag struct {
	Type string
	ID   string
}

const (
	TagTodo = "Todo"
	// ListID marks entries holding list results rather than a single Todo.
	ListID = "LIST"
)

func (t Tag) String() string {
	if t.ID == "" {
		return t.Type
	}
	return t.Type + ":" + t.ID
}

func todoTag() Tag {
	return Tag{Type: TagTodo}
}

func todoListTag() Tag {
	return Tag{Type: TagTodo, ID: ListID}
}

func todoIDTag(id int64) Tag {
	return Tag{Type: TagTodo, ID: strconv.FormatInt(id, 10)}
}

func listTags() []Tag {
	return []Tag{todoTag(), todoListTag()}
}
