package malloc

import "bytes"
import "fmt"
import "strconv"
import "strings"

import "github.com/bnclabs/shardmalloc/api"
import "github.com/prataprc/goparsec"
import "golang.org/x/exp/mmap"

// Numclasses number of entries in size-class table, indexed by
// log2 of chunk size.
const Numclasses = 64 + 1

// Minclass smallest usable size class, 8 bytes.
const Minclass = 3

// Maxclass largest size class.
const Maxclass = 64

// SizeClasses maps a power-of-two size class to the number of chunks
// minted, or moved, together in one batch.
type SizeClasses struct {
	batches [Numclasses]int64
	source  string
}

// NewSizeClasses load the size-class table from `filename`. If
// filename is empty or cannot be opened, built in table is used. A
// file with invalid content aborts the process.
func NewSizeClasses(filename string) *SizeClasses {
	sc := &SizeClasses{batches: Defaultbatches(), source: "default"}
	if filename == "" {
		return sc
	}
	batches, err := Loadsizeclasses(filename)
	if err == nil {
		sc.batches, sc.source = batches, filename
		return sc
	} else if err == errSizefile {
		warnf("sizeclass file %q cannot be opened, using defaults\n", filename)
		return sc
	}
	panicerr(api.ErrorConfiguration, "sizeclass file %q: %v", filename, err)
	return nil
}

// Sizeclass return the size class index for an allocation of `size`
// bytes.
func Sizeclass(size int64) int {
	return api.Log2(uint64(size))
}

// BatchSize return the number of chunks to mint or move for size class
// `index`. Index outside [Minclass, Maxclass] or a batch count that is
// not positive aborts the process.
func (sc *SizeClasses) BatchSize(index int) int64 {
	if index < Minclass || index > Maxclass {
		panicerr(api.ErrorConfiguration, "size class %v out of range", index)
	}
	n := sc.batches[index]
	if n <= 0 {
		fmsg := "batch count %v for size class 2^%v, please change the table"
		panicerr(api.ErrorConfiguration, fmsg, n, index)
	}
	return n
}

// Source of the table, either "default" or the file name.
func (sc *SizeClasses) Source() string {
	return sc.source
}

// Batches return a copy of the table.
func (sc *SizeClasses) Batches() [Numclasses]int64 {
	return sc.batches
}

// Defaultbatches skewed towards large batches for small hot sizes and
// batch of 1 for multi-megabyte sizes.
func Defaultbatches() [Numclasses]int64 {
	var batches [Numclasses]int64
	batches[3] = 1000   // 8B
	batches[4] = 2000   // 16B
	batches[5] = 2000   // 32B
	batches[6] = 10000  // 64B
	batches[7] = 1000   // 128B
	batches[8] = 1000   // 256B
	batches[9] = 1000   // 512B
	batches[10] = 1024  // 1KB
	batches[11] = 512   // 2KB
	batches[12] = 512   // 4KB
	batches[13] = 1024  // 8KB
	batches[14] = 10240 // 16KB
	batches[15] = 128   // 32KB
	batches[16] = 2     // 64KB
	for i := 17; i <= 34; i++ {
		batches[i] = 1 // 128KB .. 16GB
	}
	return batches
}

var errSizefile = fmt.Errorf("sizeclass file cannot be opened")

// Loadsizeclasses read a newline delimited list of integers from
// `filename`. Only the first Numclasses values are used, missing
// values are 0.
func Loadsizeclasses(filename string) ([Numclasses]int64, error) {
	var batches [Numclasses]int64

	r, err := mmap.Open(filename)
	if err != nil {
		return batches, errSizefile
	}
	defer r.Close()

	text := make([]byte, r.Len())
	if len(text) > 0 {
		if _, err := r.ReadAt(text, 0); err != nil {
			return batches, err
		}
	}
	values, err := parsebatches(text)
	if err != nil {
		return batches, err
	}
	for i := 0; i < len(values) && i < Numclasses; i++ {
		batches[i] = values[i]
	}
	return batches, nil
}

// parsebatches parse whitespace separated integers, one per size
// class, using an integer token that consumes trailing whitespace.
func parsebatches(text []byte) ([]int64, error) {
	var values []int64
	var perr error

	nodify := func(ns []parsec.ParsecNode) parsec.ParsecNode {
		for _, n := range ns {
			var term *parsec.Terminal
			switch t := n.(type) {
			case *parsec.Terminal:
				term = t
			case parsec.Terminal:
				term = &t
			default:
				continue
			}
			v, err := strconv.ParseInt(strings.TrimSpace(term.Value), 10, 64)
			if err != nil && perr == nil {
				perr = fmt.Errorf("line %v: %v", lineof(text, term.Position), err)
			}
			values = append(values, v)
		}
		return ns
	}
	y := parsec.Kleene(nodify, parsec.Token(`[+-]?[0-9]+\s*`, "INT"))
	_, news := y(parsec.NewScanner(text))

	if perr != nil {
		return nil, perr
	}
	cursor := news.GetCursor()
	if rest := text[cursor:]; len(bytes.TrimSpace(rest)) > 0 {
		fmsg := "invalid token %q at line %v"
		return nil, fmt.Errorf(fmsg, bytes.Fields(rest)[0], lineof(text, cursor))
	}
	return values, nil
}

func lineof(text []byte, cursor int) int {
	if cursor > len(text) {
		cursor = len(text)
	}
	return bytes.Count(text[:cursor], []byte{'\n'}) + 1
}
