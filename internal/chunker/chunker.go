// Package chunker 将提取出的文档文本切分为带重叠的语义单元，
// 作为向量化与检索的基本粒度。
package chunker

import "unicode"

// snapWindow 是切点向前回看寻找空白字符的最大距离（rune）。
const snapWindow = 15

// Chunk 是一个分块：文档文本的连续子串及其在原文中的 rune 偏移。
// 同一文档内 Index 从 0 开始连续递增。
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Split 将文本按 maxSize / overlap 切分为有序分块序列。
// 约束：每个分块长度 ≤ maxSize；相邻分块重叠 overlap 个字符
//（最后一块可以更短）；空文本返回 nil，不产生空分块。
// 当 overlap 配置异常导致切点无法前进时，强制至少前进一个字符以保证终止。
func Split(text string, maxSize, overlap int) []Chunk {
	if maxSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for idx := 0; start < len(runes); idx++ {
		end := start + maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// 切点尽量落在空白处，避免截断词语；找不到则退回硬边界
			end = snapToWhitespace(runes, start, end)
		}

		chunks = append(chunks, Chunk{
			Index: idx,
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})

		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			// overlap ≥ 分块长度时切点不会前进，强制步进保证终止
			next = start + 1
		}
		start = next
	}
	return chunks
}

// snapToWhitespace 在 (end-snapWindow, end] 范围内从后向前找空白字符，
// 返回紧跟其后的切点；不会让分块缩短到空。
func snapToWhitespace(runes []rune, start, end int) int {
	limit := end - snapWindow
	if limit < start+1 {
		limit = start + 1
	}
	for j := end; j > limit; j-- {
		if unicode.IsSpace(runes[j-1]) {
			return j
		}
	}
	return end
}
