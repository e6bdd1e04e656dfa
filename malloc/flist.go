package malloc

import "fmt"

import "github.com/bnclabs/shardmalloc/api"

// FreeListSet array of singly linked free-lists, one per size class.
// Not thread safe, callers serialize access.
type FreeListSet struct {
	heads  [Numclasses]*chunk
	tails  [Numclasses]*chunk
	counts [Numclasses]int64
}

// Push chunk `c` at the head of list `index`.
func (fl *FreeListSet) Push(index int, c *chunk) {
	c.flags |= flagInlist
	c.setnext(fl.heads[index])
	if fl.heads[index] == nil {
		fl.tails[index] = c
	}
	fl.heads[index] = c
	fl.counts[index]++
}

// Pop chunk from the head of list `index`, nil if empty.
func (fl *FreeListSet) Pop(index int) *chunk {
	c := fl.heads[index]
	if c == nil {
		return nil
	}
	fl.heads[index] = c.getnext()
	if fl.heads[index] == nil {
		fl.tails[index] = nil
	}
	fl.counts[index]--
	c.next, c.flags = 0, c.flags&^flagInlist
	return c
}

// PopN detach upto `n` chunks from the head of list `index` and
// return them as a nil terminated sub-list.
func (fl *FreeListSet) PopN(index int, n int64) (head, tail *chunk, count int64) {
	head = fl.heads[index]
	if head == nil || n <= 0 {
		return nil, nil, 0
	}
	tail, count = head, 1
	for count < n && tail.next != 0 {
		tail, count = tail.getnext(), count+1
	}
	fl.heads[index] = tail.getnext()
	if fl.heads[index] == nil {
		fl.tails[index] = nil
	}
	fl.counts[index] -= count
	tail.next = 0
	return head, tail, count
}

// Append sub-list head..tail, of `n` chunks, at the end of list
// `index`. Tail's next must be nil.
func (fl *FreeListSet) Append(index int, head, tail *chunk, n int64) {
	if head == nil {
		return
	} else if tail == nil || tail.next != 0 {
		panicerr(api.ErrorCorruption, "append: tail of size class %v not terminated", index)
	}
	if fl.tails[index] == nil {
		fl.heads[index] = head
	} else {
		fl.tails[index].setnext(head)
	}
	fl.tails[index] = tail
	fl.counts[index] += n
}

// Join move every list from `other` to the end of corresponding list
// in this set, `other` is left empty.
func (fl *FreeListSet) Join(other *FreeListSet) {
	for i := range other.heads {
		if other.heads[i] == nil {
			continue
		}
		fl.Append(i, other.heads[i], other.tails[i], other.counts[i])
		other.heads[i], other.tails[i], other.counts[i] = nil, nil, 0
	}
}

// Swap exchange list `index` of this set with list `index` of other.
func (fl *FreeListSet) Swap(other *FreeListSet, index int) {
	fl.heads[index], other.heads[index] = other.heads[index], fl.heads[index]
	fl.tails[index], other.tails[index] = other.tails[index], fl.tails[index]
	fl.counts[index], other.counts[index] = other.counts[index], fl.counts[index]
}

// Count number of chunks in list `index`.
func (fl *FreeListSet) Count(index int) int64 {
	return fl.counts[index]
}

// Length total number of chunks across all lists.
func (fl *FreeListSet) Length() (n int64) {
	for _, count := range fl.counts {
		n += count
	}
	return n
}

// Empty return true if every list is empty.
func (fl *FreeListSet) Empty() bool {
	for _, head := range fl.heads {
		if head != nil {
			return false
		}
	}
	return true
}

// Validate walk every list and check the header signature, list
// membership, size class and count. Walk is bounded by count. Return
// api.ErrorCorruption on mismatch.
func (fl *FreeListSet) Validate(cores int) error {
	for i, head := range fl.heads {
		if head == nil {
			if fl.tails[i] != nil || fl.counts[i] != 0 {
				return fmt.Errorf("%w: size class %v empty head", api.ErrorCorruption, i)
			}
			continue
		}
		count, last := int64(0), head
		for c := head; c != nil; c = c.getnext() {
			count++
			if count > fl.counts[i] {
				fmsg := "%w: size class %v longer than %v, cycle or bad count"
				return fmt.Errorf(fmsg, api.ErrorCorruption, i, fl.counts[i])
			} else if !c.valid(cores) || !c.inlist() {
				return fmt.Errorf("%w: size class %v bad header", api.ErrorCorruption, i)
			} else if Sizeclass(c.size) != i {
				fmsg := "%w: size %v found in class %v"
				return fmt.Errorf(fmsg, api.ErrorCorruption, c.size, i)
			}
			last = c
		}
		if last != fl.tails[i] {
			return fmt.Errorf("%w: size class %v tail mismatch", api.ErrorCorruption, i)
		} else if count != fl.counts[i] {
			fmsg := "%w: size class %v count %v, walked %v"
			return fmt.Errorf(fmsg, api.ErrorCorruption, i, fl.counts[i], count)
		}
	}
	return nil
}
