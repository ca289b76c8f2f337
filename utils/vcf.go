package utils

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gohan/variantstore/codecs/genotype"
	"gohan/variantstore/models"

	"github.com/pkg/errors"
)

// VcfReader turns VCF lines into normalized variants. Multi allelic lines
// are split, one variant per alternate, the other alternates becoming
// secondary alternates.
type VcfReader struct {
	scanner    *bufio.Scanner
	headers    []string
	samples    []string
	includeSrc bool
	line       int
	pending    []*models.Variant
}

func NewVcfReader(r io.Reader, includeSrc bool) (*VcfReader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	v := &VcfReader{scanner: scanner, includeSrc: includeSrc}

	// Gather Header row by seeking the CHROM string
	for scanner.Scan() {
		v.line++
		line := scanner.Text()
		if strings.HasPrefix(line, "##") {
			continue
		}
		if !strings.HasPrefix(line, "#CHROM") {
			return nil, errors.Errorf("line %d: expected the #CHROM header", v.line)
		}
		v.headers = strings.Split(line, "\t")
		for _, header := range v.headers {
			// anything that is not a default VCF column is a sample
			if !StringInSlice(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(header, "#", ""))), models.VcfHeaders) {
				v.samples = append(v.samples, header)
			}
		}
		return v, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("no #CHROM header found")
}

func (v *VcfReader) Samples() []string {
	return v.samples
}

func (v *VcfReader) Read(n int) ([]*models.Variant, error) {
	var out []*models.Variant
	for len(out) < n {
		if len(v.pending) > 0 {
			out = append(out, v.pending[0])
			v.pending = v.pending[1:]
			continue
		}
		if !v.scanner.Scan() {
			if err := v.scanner.Err(); err != nil {
				return out, err
			}
			break
		}
		v.line++
		line := v.scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		variants, err := v.parseLine(line)
		if err != nil {
			return out, errors.Wrapf(err, "line %d", v.line)
		}
		v.pending = variants
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

func (v *VcfReader) Close() error {
	return nil
}

func (v *VcfReader) parseLine(line string) ([]*models.Variant, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, errors.Errorf("expected at least 8 columns, got %d", len(fields))
	}
	chromosome := strings.TrimPrefix(strings.TrimSpace(fields[0]), "chr")
	pos, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, errors.Errorf("invalid position %q", fields[1])
	}
	var ids []string
	if fields[2] != "." && fields[2] != "" {
		ids = strings.Split(fields[2], ";")
	}
	ref := strings.ToUpper(strings.TrimSpace(fields[3]))
	alts := strings.Split(strings.ToUpper(strings.TrimSpace(fields[4])), ",")

	attributes := map[string]string{"QUAL": fields[5], "FILTER": fields[6]}
	if fields[7] != "." {
		for _, info := range strings.Split(fields[7], ";") {
			if key, value, found := strings.Cut(info, "="); found {
				attributes[key] = value
			} else if info != "" {
				attributes[info] = "true"
			}
		}
	}

	var format []string
	var samplesData [][]string
	if len(fields) > 8 {
		format = strings.Split(fields[8], ":")
		for _, sample := range fields[9:] {
			samplesData = append(samplesData, strings.Split(sample, ":"))
		}
	}

	variants := make([]*models.Variant, 0, len(alts))
	for k, alt := range alts {
		start, r, a := NormalizeAlleles(pos, ref, alt)
		variant := &models.Variant{
			Chromosome: chromosome,
			Start:      start,
			Reference:  r,
			Alternate:  a,
			Ids:        ids,
		}
		variant.Normalize()

		entry := &models.StudyEntry{
			Format:  format,
			Samples: v.samples,
		}
		file := &models.FileEntry{Attributes: attributes}
		if len(alts) > 1 || start != pos || r != ref || a != alt {
			file.Call = fmt.Sprintf("%d:%s:%s:%d", pos, ref, fields[4], k)
		}
		if v.includeSrc {
			file.Src = line
		}
		entry.Files = []*models.FileEntry{file}

		// the other alternates keep their order, shifted after the main one
		mapping := map[int]int{k + 1: 1}
		next := 2
		for j, other := range alts {
			if j == k {
				continue
			}
			mapping[j+1] = next
			next++
			oStart, or, oa := NormalizeAlleles(pos, ref, other)
			coordinate := models.AlternateCoordinate{Chromosome: chromosome, Start: oStart, Reference: or, Alternate: oa}
			probe := &models.Variant{Start: oStart, Reference: or, Alternate: oa}
			probe.Normalize()
			coordinate.End, coordinate.Type = probe.End, probe.Type
			entry.SecondaryAlternates = append(entry.SecondaryAlternates, coordinate)
		}
		entry.SamplesData = remapSamplesData(format, samplesData, mapping, len(alts) > 1)

		variant.Studies = []*models.StudyEntry{entry}
		variants = append(variants, variant)
	}
	return variants, nil
}

func remapSamplesData(format []string, samplesData [][]string, mapping map[int]int, remap bool) [][]string {
	gtIndex := -1
	for i, f := range format {
		if f == "GT" {
			gtIndex = i
		}
	}
	out := make([][]string, len(samplesData))
	for i, data := range samplesData {
		row := append([]string(nil), data...)
		if remap && gtIndex >= 0 && gtIndex < len(row) {
			row[gtIndex] = genotype.Remap(row[gtIndex], mapping)
		}
		out[i] = row
	}
	return out
}

// NormalizeAlleles trims the bases shared by reference and alternate,
// suffix first, moving the start accordingly. Symbolic alleles are kept.
func NormalizeAlleles(pos int, ref string, alt string) (int, string, string) {
	if alt == "" || strings.ContainsAny(alt, "<>[]*") || alt == "." {
		return pos, ref, alt
	}
	for len(ref) > 0 && len(alt) > 0 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref, alt = ref[:len(ref)-1], alt[:len(alt)-1]
	}
	for len(ref) > 0 && len(alt) > 0 && ref[0] == alt[0] {
		ref, alt = ref[1:], alt[1:]
		pos++
	}
	return pos, ref, alt
}
