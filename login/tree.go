package login

// Node is a tree node with an owned, ordered list of children.
type Node[T any] interface {
	ChildNodes() []T
}

// Search walks the tree pre-order (node, then children left to right) and
// returns the first node matching pred.
func Search[T Node[T]](root T, pred func(T) bool) (T, bool) {
	if pred(root) {
		return root, true
	}
	for _, child := range root.ChildNodes() {
		if found, ok := Search(child, pred); ok {
			return found, true
		}
	}
	var zero T
	return zero, false
}

// CollectKits builds one kit for tree and then, recursively, one for every
// descendant. Parents always precede their children in the result.
func CollectKits(tree *LoginTree, build func(*LoginTree) (Kit, error)) ([]Kit, error) {
	kit, err := build(tree)
	if err != nil {
		return nil, err
	}
	kits := []Kit{kit}
	for _, child := range tree.Children {
		childKits, err := CollectKits(child, build)
		if err != nil {
			return nil, err
		}
		kits = append(kits, childKits...)
	}
	return kits, nil
}

// FindStash returns the stash node with the given login id.
func FindStash(root *LoginStash, loginID string) (*LoginStash, bool) {
	if root == nil {
		return nil, false
	}
	return Search(root, func(s *LoginStash) bool { return s.LoginID == loginID })
}

// FindLogin returns the tree node with the given login id.
func FindLogin(root *LoginTree, loginID string) (*LoginTree, bool) {
	if root == nil {
		return nil, false
	}
	return Search(root, func(t *LoginTree) bool { return t.LoginID == loginID })
}
