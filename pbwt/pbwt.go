// Package pbwt implements the positional Burrows-Wheeler transform over
// genotype haplotype columns: at each site it permutes the sample
// haplotypes so that runs of equal allele codes dominate, which is what
// makes the downstream run-length/range coder effective. The algorithm
// itself (Durbin's PBWT update rule) is a well-known primitive, wrapped
// behind a small stateful type with an explicit constructor and a
// per-site Encode/Decode pair.
package pbwt

import (
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/genomepack/vcfile/core"
)

// State holds the running prefix array for one genotype stream. It must
// see every site of that stream, in order, through either Encode or
// Decode — never both on the same State.
type State struct {
	ploidy       int
	noSamples    int
	noHaplotypes int
	neglectLimit int

	prefix []int32 // prefix[i] = haplotype index currently at sorted rank i

	// neglected marks the haplotypes whose allele branch was pruned at
	// the current site (see advance). Kept on the State so the bitmap's
	// containers are reused across sites instead of reallocated.
	neglected *roaring.Bitmap

	initialized bool
}

// Init prepares a fresh State for noSamples diploid/polyploid samples
// (ploidy haplotypes each). neglectLimit bounds how many distinct
// rare-allele branches the prefix array keeps per site: the limit most
// populous branches are split out as usual, the rest are neglected —
// left unsplit, in their current relative order, at the tail. Larger
// values track more branches (more memory, better runs for the coder);
// smaller values collapse more of the tail and run faster. Zero means
// no bound.
func Init(ploidy, noSamples, neglectLimit int) (*State, error) {
	if ploidy <= 0 || noSamples <= 0 {
		return nil, core.CodecErrorf(nil, "pbwt: invalid dimensions ploidy=%d noSamples=%d", ploidy, noSamples)
	}
	if neglectLimit < 0 {
		return nil, core.CodecErrorf(nil, "pbwt: negative neglectLimit %d", neglectLimit)
	}

	n := ploidy * noSamples
	prefix := make([]int32, n)
	for i := range prefix {
		prefix[i] = int32(i)
	}

	return &State{
		ploidy:       ploidy,
		noSamples:    noSamples,
		noHaplotypes: n,
		neglectLimit: neglectLimit,
		prefix:       prefix,
		neglected:    roaring.New(),
		initialized:  true,
	}, nil
}

// Encode consumes one site's allele-code vector, indexed by original
// haplotype index (length must equal ploidy*noSamples), and returns the
// same codes reordered by the current prefix array — i.e. permuted so
// that haplotypes sharing the longest suffix of previously seen alleles
// are adjacent. It then advances the prefix array.
func (s *State) Encode(site []byte) ([]byte, error) {
	if !s.initialized {
		return nil, core.StateErrorf("pbwt: Encode called before Init")
	}
	if len(site) != s.noHaplotypes {
		return nil, core.CodecErrorf(nil, "pbwt: site length %d != %d haplotypes", len(site), s.noHaplotypes)
	}

	permuted := make([]byte, s.noHaplotypes)
	for rank, hap := range s.prefix {
		permuted[rank] = site[hap]
	}

	s.advance(site)
	return permuted, nil
}

// Decode is the mirror of Encode: given a site already expressed in
// prefix order, it returns the site re-expressed in original haplotype
// order, advancing the prefix array identically to Encode so encoder
// and decoder stay in lockstep.
func (s *State) Decode(permuted []byte) ([]byte, error) {
	if !s.initialized {
		return nil, core.StateErrorf("pbwt: Decode called before Init")
	}
	if len(permuted) != s.noHaplotypes {
		return nil, core.CodecErrorf(nil, "pbwt: permuted site length %d != %d haplotypes", len(permuted), s.noHaplotypes)
	}

	site := make([]byte, s.noHaplotypes)
	for rank, hap := range s.prefix {
		site[hap] = permuted[rank]
	}

	s.advance(site)
	return site, nil
}

// advance applies the stable bucket update: haplotypes are bucketed by
// their allele at this site, preserving their relative prefix order
// within each bucket, then concatenated in first-appearance order. When
// the site has more distinct alleles than neglectLimit, only the limit
// most populous branches (count ties broken by appearance order) are
// split out; the remaining haplotypes are recorded in the neglected
// bitmap and appended unsplit, in their current prefix order. Encoder
// and decoder both advance from the reconstructed site, so the
// permutation stays in lockstep.
func (s *State) advance(site []byte) {
	buckets := make(map[byte][]int32)
	order := make([]byte, 0, 4)
	counts := make(map[byte]int)
	for _, hap := range s.prefix {
		a := site[hap]
		if counts[a] == 0 {
			order = append(order, a)
		}
		buckets[a] = append(buckets[a], hap)
		counts[a]++
	}

	kept := order
	if s.neglectLimit > 0 && len(order) > s.neglectLimit {
		kept = selectBranches(order, counts, s.neglectLimit)
	}

	next := make([]int32, 0, s.noHaplotypes)
	for _, a := range kept {
		next = append(next, buckets[a]...)
	}

	s.neglected.Clear()
	if len(kept) < len(order) {
		surviving := make(map[byte]bool, len(kept))
		for _, a := range kept {
			surviving[a] = true
		}
		for _, hap := range s.prefix {
			if !surviving[site[hap]] {
				s.neglected.Add(uint32(hap))
			}
		}
		for _, hap := range s.prefix {
			if s.neglected.Contains(uint32(hap)) {
				next = append(next, hap)
			}
		}
	}

	s.prefix = next
}

// selectBranches picks the limit most populous alleles, then restores
// first-appearance order among the survivors so the concatenation stays
// deterministic.
func selectBranches(order []byte, counts map[byte]int, limit int) []byte {
	ranked := append([]byte(nil), order...)
	sort.SliceStable(ranked, func(i, j int) bool { return counts[ranked[i]] > counts[ranked[j]] })
	surviving := make(map[byte]bool, limit)
	for _, a := range ranked[:limit] {
		surviving[a] = true
	}

	kept := make([]byte, 0, limit)
	for _, a := range order {
		if surviving[a] {
			kept = append(kept, a)
		}
	}
	return kept
}

// Reset discards the running prefix array and neglected-branch
// bookkeeping, returning the state to its condition immediately after
// Init.
func (s *State) Reset() {
	for i := range s.prefix {
		s.prefix[i] = int32(i)
	}
	s.neglected.Clear()
}
