package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/cache"
	"storefront/internal/models"
)

const (
	maxImageSize     = 5 << 20
	productUploadDir = "uploads/products"
)

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

var errImageRequired = errors.New("image file is required")

// saveImage validates an uploaded image and writes it under
// <publicDir>/uploads/products. It returns the public URL path.
func saveImage(file *multipart.FileHeader, publicDir string) (string, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if extension == "" {
		return "", fmt.Errorf("image file extension is required")
	}
	wantType, ok := allowedImageTypes[extension]
	if !ok {
		return "", fmt.Errorf("unsupported image type: %s", extension)
	}
	if file.Size > maxImageSize {
		return "", fmt.Errorf("image file too large (max 5MB)")
	}

	in, err := file.Open()
	if err != nil {
		return "", err
	}
	defer in.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(in, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if detected := http.DetectContentType(head[:n]); detected != wantType {
		return "", fmt.Errorf("file content (%s) does not match %s", detected, extension)
	}

	dir := filepath.Join(publicDir, filepath.FromSlash(productUploadDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[UPLOAD] [ERROR] create directory %s: %v", dir, err)
		return "", err
	}

	filename := uuid.NewString() + extension
	fullPath := filepath.Join(dir, filename)

	out, err := os.Create(fullPath)
	if err != nil {
		log.Printf("[UPLOAD] [ERROR] create file %s: %v", fullPath, err)
		return "", err
	}
	defer out.Close()

	if _, err := out.Write(head[:n]); err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		log.Printf("[UPLOAD] [ERROR] write file %s: %v", fullPath, err)
		return "", err
	}

	log.Printf("[UPLOAD] [INFO] saved %s (%d bytes)", fullPath, file.Size)
	return "/" + productUploadDir + "/" + filename, nil
}

func UploadProductImage(db *mongo.Database, catalog cache.Cache, publicDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products/:id/images"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageSize+(1<<20))
		file, err := c.FormFile("image")
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, errImageRequired.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		if _, err := findEditableProduct(ctx, db, id); err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		} else if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		url, err := saveImage(file, publicDir)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		image := models.ProductImage{URL: url, Alt: strings.TrimSpace(c.PostForm("alt"))}
		var updated models.Product
		err = db.Collection("products").FindOneAndUpdate(ctx,
			bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
			bson.M{
				"$push": bson.M{"images": image},
				"$set":  bson.M{"updatedAt": time.Now()},
			},
			returnAfter(),
		).Decode(&updated)
		if err != nil {
			if rmErr := safeDeleteUpload(publicDir, url); rmErr != nil {
				log.Println("[UPLOAD] [WARN] orphan cleanup failed:", rmErr)
			}
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		invalidateCatalog(ctx, catalog)
		decorateProduct(&updated)
		c.JSON(http.StatusCreated, gin.H{"image": image, "product": updated})
	}
}

func DeleteProductImage(db *mongo.Database, catalog cache.Cache, publicDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id/images"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, route, "id")
		if !ok {
			return
		}
		url := strings.TrimSpace(c.Query("url"))
		if url == "" {
			respondWithError(c, http.StatusBadRequest, route, "url is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
		defer cancel()

		var updated models.Product
		err := db.Collection("products").FindOneAndUpdate(ctx,
			bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}, "images.url": url},
			bson.M{
				"$pull": bson.M{"images": bson.M{"url": url}},
				"$set":  bson.M{"updatedAt": time.Now()},
			},
			returnAfter(),
		).Decode(&updated)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "image not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		// externally hosted images have nothing on disk
		if strings.HasPrefix(url, "/"+productUploadDir+"/") {
			if err := safeDeleteUpload(publicDir, url); err != nil {
				log.Printf("[UPLOAD] [WARN] delete %s failed: %v", url, err)
			}
		}

		invalidateCatalog(ctx, catalog)
		decorateProduct(&updated)
		c.JSON(http.StatusOK, updated)
	}
}
