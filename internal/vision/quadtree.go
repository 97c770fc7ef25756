package vision

const (
	quadtreeCapacity = 8
	quadtreeMaxDepth = 8
)

// Quadtree indexes static obstacles by bounding box for circle queries in
// O(log n + k). Built once at load; read-only afterwards.
type Quadtree struct {
	root *quadNode
	size int
}

type quadNode struct {
	bounds   AABB
	depth    int
	items    []quadItem
	children *[4]*quadNode
}

type quadItem struct {
	bounds   AABB
	obstacle *Obstacle
}

// NewQuadtree builds a tree covering the given world bounds.
func NewQuadtree(bounds AABB, obstacles []Obstacle) *Quadtree {
	tree := &Quadtree{root: &quadNode{bounds: bounds}}
	for i := range obstacles {
		tree.insert(&obstacles[i])
	}
	return tree
}

// Len reports the number of indexed obstacles.
func (t *Quadtree) Len() int { return t.size }

func (t *Quadtree) insert(o *Obstacle) {
	t.root.insert(quadItem{bounds: o.Bounds(), obstacle: o})
	t.size++
}

func (n *quadNode) insert(item quadItem) {
	if n.children != nil {
		if child := n.childFor(item.bounds); child != nil {
			child.insert(item)
			return
		}
		n.items = append(n.items, item)
		return
	}
	n.items = append(n.items, item)
	if len(n.items) > quadtreeCapacity && n.depth < quadtreeMaxDepth {
		n.split()
	}
}

func (n *quadNode) split() {
	var children [4]*quadNode
	for i := 0; i < 4; i++ {
		children[i] = &quadNode{bounds: n.bounds.quadrant(i), depth: n.depth + 1}
	}
	n.children = &children

	remaining := n.items[:0]
	for _, item := range n.items {
		if child := n.childFor(item.bounds); child != nil {
			child.insert(item)
		} else {
			remaining = append(remaining, item)
		}
	}
	n.items = remaining
}

// childFor returns the single child fully containing the box, or nil when it
// straddles a boundary.
func (n *quadNode) childFor(box AABB) *quadNode {
	for _, child := range n.children {
		if box.MinX >= child.bounds.MinX && box.MaxX <= child.bounds.MaxX &&
			box.MinY >= child.bounds.MinY && box.MaxY <= child.bounds.MaxY {
			return child
		}
	}
	return nil
}

// QueryCircle returns every obstacle whose bounding box touches the circle.
func (t *Quadtree) QueryCircle(center Vec2, radius float64) []*Obstacle {
	var out []*Obstacle
	t.root.queryCircle(center, radius, &out)
	return out
}

func (n *quadNode) queryCircle(center Vec2, radius float64, out *[]*Obstacle) {
	if !n.bounds.IntersectsCircle(center, radius) {
		return
	}
	for _, item := range n.items {
		if item.bounds.IntersectsCircle(center, radius) {
			*out = append(*out, item.obstacle)
		}
	}
	if n.children != nil {
		for _, child := range n.children {
			child.queryCircle(center, radius, out)
		}
	}
}
