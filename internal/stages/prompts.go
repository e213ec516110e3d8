package stages

import (
	"fmt"
	"strings"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

const analystInstructions = "You are a market research analyst. Given the following product data from multiple " +
	"e-commerce sites, perform a deep analysis including: internal product comparison, cross-site comparison, " +
	"market research, and trend identification. Be thorough and analytical."

const analysisChecklist = `Your analysis should include:
- Comparison of products (features, price, uniqueness) across all sites
- Identification of market trends
- Insights about product positioning and opportunities
- Any notable patterns or outliers
Provide a detailed, structured report.`

const reportInstructions = `You are a senior business analyst. Based on the following market analysis, generate a comprehensive business report. The report should be well-structured, visually appealing, and suitable for presentation to executives. Use clear section headings, bullet points, and concise language. Include:
- Executive Summary
- Key Findings (with bullet points)
- Market Trends
- Product Positioning & Opportunities
- Notable Patterns & Outliers
- Actionable Recommendations
- Conclusion
Format the report for easy reading. Use bold for section titles and bullet points for lists.`

const answerInstructions = "You are a market research assistant. Use ONLY the following analysis as context to " +
	"answer the user's question. If the answer is not in the analysis, say 'The analysis does not provide " +
	"information on that.'\nRespond in a professional, direct, and confident manner."

func analysisPrompt(products []model.Product) []core.ChatMessage {
	var b strings.Builder
	b.WriteString("Product Data:\n")
	for _, p := range products {
		fmt.Fprintf(&b, "- Name: %s\n  Price: %.2f\n  Source: %s\n  Description: %s\n",
			p.Name, p.Price, p.Source, p.Description)
	}
	b.WriteString("\n")
	b.WriteString(analysisChecklist)
	return []core.ChatMessage{
		{Role: "system", Content: analystInstructions},
		{Role: "user", Content: b.String()},
	}
}

func reportPrompt(analysis string) []core.ChatMessage {
	return []core.ChatMessage{
		{Role: "system", Content: reportInstructions},
		{Role: "user", Content: "Market Analysis Data:\n" + analysis + "\n\nWrite the business report below:"},
	}
}

func answerPrompt(analysis, question string) []core.ChatMessage {
	return []core.ChatMessage{
		{Role: "system", Content: answerInstructions},
		{Role: "user", Content: "Analysis Context:\n" + analysis + "\n\nUser Question: " + question + "\nAnswer:"},
	}
}
