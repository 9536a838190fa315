package utils

import "github.com/gin-gonic/gin"

func JSONSuccess(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func JSONError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"success": false, "error": message})
}

// JSONFieldErrors answers a rejected form. fields maps every offending key
// to its reason; first is the one the kiosk should focus.
func JSONFieldErrors(c *gin.Context, code int, message string, fields, first interface{}) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
		"fields":  fields,
		"first":   first,
	})
}
