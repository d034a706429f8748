package fastembed

// meanPool averages the token vectors of each sequence in a
// [batch, seq, dim] last_hidden_state tensor, counting only positions whose
// attention mask is set. A sequence with no attended tokens yields a zero
// vector. The result is not normalized; ai.Extractor does that.
func meanPool(hidden []float32, mask []int64, batch, seq, dim int) [][]float32 {
	out := make([][]float32, batch)
	for b := range batch {
		vec := make([]float32, dim)
		var count float32
		for s := range seq {
			if mask[b*seq+s] == 0 {
				continue
			}
			count++
			row := hidden[(b*seq+s)*dim : (b*seq+s+1)*dim]
			for d, v := range row {
				vec[d] += v
			}
		}
		if count > 0 {
			for d := range vec {
				vec[d] /= count
			}
		}
		out[b] = vec
	}
	return out
}
